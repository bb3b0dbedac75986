package imagegen

const floorPlanInstructions = `You are an expert architectural designer and CAD technician. Generate one professional 2D floor plan that satisfies the brief below.

OUTPUT:
- A single clean black and white 2D floor plan image.
- Bold, legible sans-serif labels for every room and dimension.
- Straight dimension lines, a graphical scale and the total square footage.
- Standard symbols, door swings on every door, windows placed for daylight.
- Room counts and features exactly as requested.

`

const reviewCritiqueInstructions = `You are a master architect reviewing a draft floor plan against the client's requirements.

Check the attached plan for:
- Room counts, sizes or layouts that do not match the requirements.
- Poor zoning or circulation, missing daylight, inaccessible hallways.
- Mismatches with the requested architectural style.

Reply with a short critique and one concrete correction instruction that an image editor can apply directly to the drawing.`

const polishCritiqueInstructions = `You are a CAD technician doing the final quality check of a floor plan whose layout is already approved.

Check ONLY visual polish:
- Text legibility: blurry, warped, misspelled or stylised labels.
- Dimension lines: wavy, broken or floating lines.
- Symbol consistency: doors, windows, stairs and fixtures drawn to one standard, door swings present.
- Line work: wobbly walls, uneven thickness, stray marks.

Do NOT request any change to room count, room placement, walls or layout, even if the requirements seem to ask for it. Reply with a short critique and one correction instruction limited to cleanup.`

const reviewEditInstructions = `Edit the attached floor plan to apply the correction below. Output a corrected black and white 2D floor plan.

CORRECTION:
`

const polishEditInstructions = `Edit the attached floor plan to apply the cleanup below. Do not change the layout. Output a professional black and white 2D architectural drawing.

CLEANUP:
`

const interiorInstructions = `Transform the attached 2D floor plan into one photo-realistic, fully furnished 3D interior rendering.

Viewpoint: a top-down axonometric "dollhouse" view at a slight angle so walls have height and furniture reads in 3D. Not a flat 2D image.

Follow the plan's layout, room dimensions, doors and windows exactly. Furnish every room with furniture, materials, colors and lighting consistent with the style below. The result must be high resolution and professionally lit.

`

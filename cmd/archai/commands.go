package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/archai/internal/config"
	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/session"
	"github.com/kalambet/archai/internal/stage"
)

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create and drive design sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new design session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sessions", nil)
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printSuccess("Started session %s", snap.ID)
		printTurns(cmd.OutOrStdout(), snap.Turns)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List design sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions")
		if err != nil {
			return err
		}
		var sessions []session.Summary
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s  %s  %s\n",
				colorize(colorCyan, s.ID),
				s.StageTitle,
				s.UpdatedAt.Local().Format("2006-01-02 15:04"),
				truncate(s.Vision, 60),
			)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's stage, requirements and transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		if asJSON {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return prettyJSON(cmd.OutOrStdout(), raw)
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

var sessionSayCmd = &cobra.Command{
	Use:   "say <id> <message>",
	Short: "Send a chat message to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/messages", map[string]string{"text": text})
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			if isStatus(err, http.StatusBadGateway) {
				printWarning("The assistant could not process that message; nothing was changed. Try again.")
			}
			return err
		}
		printTurns(cmd.OutOrStdout(), repliesAfterLastUser(snap.Turns))
		printStep("Stage: %s", snap.Stage.Title())
		return nil
	},
}

var sessionUploadCmd = &cobra.Command{
	Use:   "upload <id> <image-file>",
	Short: "Attach an inspiration image to a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[1])))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.upload(cmd.Context(), "/sessions/"+args[0]+"/inspiration", args[1], mimeType, data)
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printSuccess("Attached %s (%s) as inspiration", filepath.Base(args[1]), mimeType)
		return nil
	},
}

var sessionEditCmd = &cobra.Command{
	Use:   "edit <id> <field> <value>",
	Short: "Edit a collected requirement directly",
	Long: `Edit a collected requirement directly.

Fields: vision, squareFootage, lotSize, rooms, budget, architecturalStyle,
lifestyleNeeds, specialRequirements, materialPreferences,
aestheticPreferences. snake_case names are accepted too.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, ok := requirements.ParseField(args[1])
		if !ok || !field.IsCollected() {
			return fmt.Errorf("unknown requirement field %q", args[1])
		}
		value := strings.Join(args[2:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/sessions/"+args[0]+"/requirements", map[string]string{string(field): value})
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printSuccess("Set %s = %s", field.Label(), value)
		return nil
	},
}

var sessionInteriorCmd = &cobra.Command{
	Use:   "interior <id>",
	Short: "Choose whether to render an interior for the floor plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		render, _ := cmd.Flags().GetBool("render")
		skip, _ := cmd.Flags().GetBool("skip")
		if render == skip {
			return fmt.Errorf("exactly one of --render or --skip is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/interior", map[string]bool{"render": render})
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		if render {
			printStep("Rendering interior; follow progress with `archai chat %s`", snap.ID)
		} else {
			printSuccess("Design complete")
		}
		return nil
	},
}

var sessionExplainCmd = &cobra.Command{
	Use:   "explain <id>",
	Short: "Explain how the requirements shape the design",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sessions/"+args[0]+"/rationale")
		if err != nil {
			return err
		}
		var out struct {
			Explanation string `json:"explanation"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Explanation)
		return nil
	},
}

var sessionDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Clear a session's failure notice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0]+"/notice")
		if err != nil {
			return err
		}
		var snap session.Snapshot
		return decodeJSON(resp, &snap)
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write the prompt and generated images to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = "archai-" + args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		written, err := exportSession(cmd.Context(), client, args[0], dir)
		if err != nil {
			return err
		}
		if len(written) == 0 {
			printWarning("Nothing to export yet")
			return nil
		}
		for _, p := range written {
			printSuccess("Wrote %s", p)
		}
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionShowCmd.Flags().Bool("json", false, "print the raw session JSON")
	sessionInteriorCmd.Flags().Bool("render", false, "render an interior view")
	sessionInteriorCmd.Flags().Bool("skip", false, "finish without an interior view")
	sessionExportCmd.Flags().String("dir", "", "output directory (default: archai-<id>)")

	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSayCmd)
	sessionCmd.AddCommand(sessionUploadCmd)
	sessionCmd.AddCommand(sessionEditCmd)
	sessionCmd.AddCommand(sessionInteriorCmd)
	sessionCmd.AddCommand(sessionExplainCmd)
	sessionCmd.AddCommand(sessionDismissCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

// exportSession writes prompt.txt and every available image into dir and
// returns the paths written. Missing artifacts are skipped.
func exportSession(ctx context.Context, client *apiClient, id, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	var written []string
	resp, err := client.get(ctx, "/sessions/"+id+"/prompt")
	if err != nil {
		return nil, err
	}
	prompt, err := readBody(resp)
	switch {
	case isStatus(err, http.StatusNotFound):
	case err != nil:
		return nil, err
	default:
		p := filepath.Join(dir, "prompt.txt")
		if err := os.WriteFile(p, prompt, 0o644); err != nil {
			return nil, err
		}
		written = append(written, p)
	}

	for _, kind := range []string{"floorplan", "interior", "inspiration"} {
		resp, err := client.get(ctx, "/sessions/"+id+"/images/"+kind)
		if err != nil {
			return written, err
		}
		ext := extensionFor(resp.Header.Get("Content-Type"))
		data, err := readBody(resp)
		if isStatus(err, http.StatusNotFound) {
			continue
		}
		if err != nil {
			return written, err
		}
		p := filepath.Join(dir, kind+ext)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

func extensionFor(mimeType string) string {
	switch strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

// repliesAfterLastUser returns the assistant turns that answer the most
// recent user message.
func repliesAfterLastUser(turns []conversation.Turn) []conversation.Turn {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == conversation.User {
			return turns[i+1:]
		}
	}
	return turns
}

func printTurns(w io.Writer, turns []conversation.Turn) {
	for _, t := range turns {
		switch {
		case t.Role == conversation.User:
			fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "you:"), t.Text)
		case t.Rhetorical:
			fmt.Fprintf(w, "%s\n", colorize(colorCyan, "… "+t.Text))
		default:
			fmt.Fprintf(w, "%s %s\n", colorize(colorGreen, "archai:"), t.Text)
		}
	}
}

func printSnapshot(w io.Writer, snap session.Snapshot) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Session:"), snap.ID)
	fmt.Fprintf(w, "%s %s (%d/%d)", colorize(colorBold, "Stage:"), snap.Stage.Title(), snap.Stage.Index()+1, len(stage.All))
	if snap.Busy {
		fmt.Fprint(w, colorize(colorYellow, " [working]"))
	}
	fmt.Fprintln(w)
	if snap.Notice != "" {
		fmt.Fprintln(w, colorize(colorRed, "! "+snap.Notice))
	}

	fmt.Fprintln(w, colorize(colorBold, "\nRequirements:"))
	for _, f := range requirements.CollectedFields {
		v, ok := snap.Record.Get(f).Value()
		if !ok {
			v = colorize(colorYellow, "(not yet answered)")
		}
		fmt.Fprintf(w, "  %-22s %s\n", f.Label()+":", v)
	}

	if len(snap.Turns) > 0 {
		fmt.Fprintln(w, colorize(colorBold, "\nConversation:"))
		printTurns(w, snap.Turns)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		if err := cfg.Validate(); err != nil {
			printWarning("%v", err)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if strings.HasSuffix(key, "api_key") {
			printSuccess("Stored %s in the secret store", key)
		} else {
			printSuccess("Set %s = %s", key, value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func prettyJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

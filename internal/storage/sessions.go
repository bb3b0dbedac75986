package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const sessionColumns = `id, stage, record_json, notice, created_at, updated_at`

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var created, updated string
	if err := r.Scan(&sess.ID, &sess.Stage, &sess.RecordJSON, &sess.Notice, &created, &updated); err != nil {
		return Session{}, err
	}
	var err error
	if sess.CreatedAt, err = parseStamp("created_at", created); err != nil {
		return Session{}, err
	}
	if sess.UpdatedAt, err = parseStamp("updated_at", updated); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SaveSession upserts the session row, inserts turns whose Seq is not yet
// stored (existing turns are never rewritten) and replaces images by kind,
// all in one transaction.
func (s *Store) SaveSession(sess Session, turns []Turn, images []Image) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				stage       = excluded.stage,
				record_json = excluded.record_json,
				notice      = excluded.notice,
				updated_at  = excluded.updated_at`,
			sess.ID, sess.Stage, sess.RecordJSON, sess.Notice, stamp(sess.CreatedAt), stamp(sess.UpdatedAt))
		if err != nil {
			return fmt.Errorf("saving session %s: %w", sess.ID, err)
		}

		if len(turns) > 0 {
			ins, err := tx.Prepare(`
				INSERT INTO turns (session_id, seq, role, text, rhetorical, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(session_id, seq) DO NOTHING`)
			if err != nil {
				return err
			}
			defer ins.Close()
			for _, t := range turns {
				if _, err := ins.Exec(sess.ID, t.Seq, t.Role, t.Text, t.Rhetorical, stamp(t.CreatedAt)); err != nil {
					return fmt.Errorf("appending turn %d: %w", t.Seq, err)
				}
			}
		}

		for _, img := range images {
			_, err := tx.Exec(`
				INSERT INTO images (session_id, kind, mime_type, data, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(session_id, kind) DO UPDATE SET
					mime_type  = excluded.mime_type,
					data       = excluded.data,
					updated_at = excluded.updated_at`,
				sess.ID, img.Kind, img.MIMEType, img.Data, stamp(sess.UpdatedAt))
			if err != nil {
				return fmt.Errorf("saving %s image: %w", img.Kind, err)
			}
		}
		return nil
	})
}

func (s *Store) GetSession(id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and everything hanging off it. Jobs
// already running are left for the worker to settle.
func (s *Store) DeleteSession(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		for _, table := range []string{"turns", "images"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
				return fmt.Errorf("deleting %s: %w", table, err)
			}
		}
		_, err = tx.Exec(`DELETE FROM jobs WHERE session_id = ? AND status = ?`, id, JobPending)
		return err
	})
}

// ListTurns returns a session's transcript ordered by Seq.
func (s *Store) ListTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, role, text, rhetorical, created_at
		FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var created string
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Text, &t.Rhetorical, &created); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseStamp("created_at", created); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListImages returns the stored images of a session ordered by kind.
func (s *Store) ListImages(sessionID string) ([]Image, error) {
	rows, err := s.db.Query(`
		SELECT session_id, kind, mime_type, data, updated_at
		FROM images WHERE session_id = ? ORDER BY kind`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		var updated string
		if err := rows.Scan(&img.SessionID, &img.Kind, &img.MIMEType, &img.Data, &updated); err != nil {
			return nil, err
		}
		if img.UpdatedAt, err = parseStamp("updated_at", updated); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

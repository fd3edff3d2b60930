package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/pavelanni/labgrader/internal/answer"
	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/store"
)

// loadValidations imports answer-key files. Each file is imported once;
// a file that changed since its import is skipped so running sessions keep
// being graded against the same key.
func loadValidations(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("answer key unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("answer key changed since last import, skipping to avoid regrading open sessions",
				"path", path)
			continue
		}

		var keys []model.ValidationImport
		if err := json.Unmarshal(data, &keys); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, k := range keys {
			if k.LabID == "" || k.ExID == "" {
				return fmt.Errorf("%s: answer key without lab_id or ex_id", path)
			}
			typ := ""
			if k.AnswerType != "" {
				if typ, err = answer.ParseKind(k.AnswerType); err != nil {
					return fmt.Errorf("%s: %s/%s: %w", path, k.LabID, k.ExID, err)
				}
			}
			expected, err := json.Marshal(k.Expected)
			if err != nil {
				return fmt.Errorf("%s: %s/%s: %w", path, k.LabID, k.ExID, err)
			}
			_, err = db.UpsertValidation(model.Validation{
				LabID:      k.LabID,
				ExID:       k.ExID,
				AnswerType: typ,
				Expected:   string(expected),
			})
			if err != nil {
				return fmt.Errorf("insert answer key from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported answer keys", "path", path, "count", len(keys))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

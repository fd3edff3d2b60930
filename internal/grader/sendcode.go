package grader

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	appI18n "github.com/pavelanni/labgrader/internal/i18n"
	"github.com/pavelanni/labgrader/internal/model"
)

// SendCode uploads the source of an exercise file, leaving out the lines
// that carry the participant's name and email.
func (c *Client) SendCode(ctx context.Context, filename, server string) error {
	if server == "" {
		var ok bool
		if server, ok = c.FindServer(ctx, "", ""); !ok {
			fmt.Fprintln(c.out, appI18n.T(ctx, "ServersDown"))
			return nil
		}
	}

	text, err := readStripped(filename)
	if err != nil {
		return err
	}
	sum := sha1.Sum([]byte(text))

	req := model.SendFileRequest{
		Filename: filename,
		Hash:     hex.EncodeToString(sum[:]),
		Content:  base64.StdEncoding.EncodeToString([]byte(text)),
	}

	fmt.Fprintln(c.out, appI18n.Td(ctx, "SendingFile", map[string]any{"File": filename}))
	var resp model.SendFileResponse
	if err := c.SendRequest(ctx, req, server+"/send-file", &resp); err != nil {
		return fmt.Errorf("send %s: %w", filename, err)
	}
	if resp.IsSent {
		fmt.Fprintln(c.out, appI18n.T(ctx, "FileSent"))
	} else {
		fmt.Fprintln(c.out, appI18n.Td(ctx, "FileError", map[string]any{"Cause": resp.Cause}))
	}
	return nil
}

// readStripped returns the file text without identity lines. Line endings
// are normalised to "\n" the way a text-mode read does, so the hash does not
// depend on the editor that saved the file.
func readStripped(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sb strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line != "" && !strings.Contains(line, "name =") && !strings.Contains(line, "email =") {
			sb.WriteString(line)
		}
	}
	return sb.String(), nil
}

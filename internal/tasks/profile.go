package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

const maxProfileBytes = 32 << 20

// profileFetch downloads a public profile and stores it as <data_dir>/<name>.json.
//
// With an upload URL configured it mirrors the toolbox refresh flow: announce
// the profile with an empty payload, fetch, then re-upload what was fetched.
func (c *Catalog) profileFetch(name string) schedule.Func {
	return func(ctx context.Context, args ...string) error {
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return errors.New("profile_fetch needs a profile name")
		}
		profile := strings.TrimSpace(args[0])
		pc := c.cfg.Profile
		if strings.TrimSpace(pc.BaseURL) == "" {
			return errors.New("tasks.profile.base_url is not set")
		}
		log := c.log.With(logx.String("job", name), logx.String("profile", profile))

		if pc.UploadURL != "" {
			// The announce step is best-effort.
			if err := c.upload(ctx, profile, json.RawMessage("{}")); err != nil {
				log.Warn("profile announce failed", logx.Err(err))
			}
		}

		data, err := c.fetchProfile(ctx, profile)
		if err != nil {
			return err
		}
		path, err := saveProfile(pc.DataDir, profile, data)
		if err != nil {
			return err
		}
		log.Info("profile saved", logx.String("path", path), logx.Int("bytes", len(data)))

		if pc.UploadURL != "" {
			if err := c.upload(ctx, profile, data); err != nil {
				return fmt.Errorf("upload profile: %w", err)
			}
			log.Info("profile uploaded")
		}
		return nil
	}
}

func (c *Catalog) fetchProfile(ctx context.Context, profile string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.cfg.Profile.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base_url: %w", err)
	}
	q := u.Query()
	q.Set("profile", profile)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch profile: %s", resp.Status)
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, errors.New("fetch profile: response is not JSON")
	}
	if bytes.Equal(body, []byte("{}")) || bytes.Equal(body, []byte("null")) {
		return nil, errors.New("fetch profile: empty profile")
	}
	return json.RawMessage(body), nil
}

func (c *Catalog) upload(ctx context.Context, profile string, data json.RawMessage) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(struct {
		Profile string          `json:"profile"`
		Data    json.RawMessage `json:"data"`
	}{Profile: profile, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Profile.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upload: %s", resp.Status)
	}
	return nil
}

// saveProfile writes data atomically and returns the final path.
func saveProfile(dir, profile string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	// Profile names are user input; keep them inside dir.
	path := filepath.Join(dir, filepath.Base(filepath.Clean("/"+profile))+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	return path, nil
}

// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhookd serves the update-trigger endpoints that turn upstream
// release notifications into scheduled builds.
package webhookd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/debler/debler/pkg/catalog"
	"github.com/debler/debler/pkg/config"
	"github.com/debler/debler/pkg/packager"
	"github.com/google/uuid"
)

// maxBodySize bounds release notifications; they carry one name and version.
const maxBodySize = 1 << 20

// hookTimeout bounds the optional post-schedule hook command.
const hookTimeout = 60 * time.Second

// Store is the catalog surface the webhook needs.
type Store interface {
	Packager(ctx context.Context, name string) (*catalog.Packager, error)
	PackageInfo(ctx context.Context, packagerID int64, name, debName string) (*catalog.Package, error)
	HasVersion(ctx context.Context, slotID int64, v string) (bool, error)
	ScheduleBuild(ctx context.Context, slot *catalog.Slot, opts catalog.ScheduleOpts) (int64, error)
}

var _ Store = &catalog.DB{}

// Server handles update triggers for every enabled packager.
type Server struct {
	Catalog Store
	Config  *config.Config
	// Exec runs the hook command; tests replace it.
	Exec func(ctx context.Context, args []string) error
}

// Handler returns the HTTP handler of the webhook service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debler/updatetrigger/", s.handleUpdateTrigger)
	return mux
}

// release is the body of an update trigger.
type release struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/debler/updatetrigger/")
	pkgr, err := packager.Get(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	reg, err := s.Catalog.Packager(r.Context(), name)
	if err != nil || !reg.Enabled || !reg.Config.Webhook {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	if r.ContentLength < 0 {
		http.Error(w, "length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > maxBodySize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var rel release
	if err := json.Unmarshal(body, &rel); err != nil || rel.Name == "" || rel.Version == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if key := reg.Config.APIKey; key != "" {
		sum := sha256.Sum256([]byte(rel.Name + rel.Version + key))
		if auth != hex.EncodeToString(sum[:]) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	w.Write([]byte("OK"))
	// Each trigger gets a correlation id so the log lines of concurrent
	// notifications stay attributable.
	reqID := uuid.NewString()
	log.Printf("[%s] webhook triggered for %s %s", reqID, rel.Name, rel.Version)
	// The notifier got its answer; scheduling happens on our own account.
	s.schedule(r.Context(), reqID, pkgr, reg, rel)
}

func (s *Server) schedule(ctx context.Context, reqID string, pkgr packager.Packager, reg *catalog.Packager, rel release) {
	info, err := s.Catalog.PackageInfo(ctx, reg.ID, rel.Name, pkgr.DebName(rel.Name))
	if err != nil {
		log.Printf("[%s] skip release %s of %s: we do not use it", reqID, rel.Version, rel.Name)
		return
	}
	slot, ok := info.SlotFor(rel.Version)
	if !ok {
		log.Printf("[%s] %s released %s in a slot we do not track", reqID, rel.Name, rel.Version)
		return
	}
	exists, err := s.Catalog.HasVersion(ctx, slot.ID, rel.Version)
	if err != nil {
		log.Printf("[%s] checking %s %s: %v", reqID, rel.Name, rel.Version, err)
		return
	}
	if exists {
		log.Printf("[%s] %s rerelease in version %s", reqID, rel.Name, rel.Version)
		return
	}
	_, err = s.Catalog.ScheduleBuild(ctx, slot, catalog.ScheduleOpts{
		Version:      rel.Version,
		Format:       s.buildFormat(pkgr.Name()),
		Changelog:    "New upstream release",
		Distribution: s.Config.Distribution,
	})
	if err != nil {
		log.Printf("[%s] scheduling %s %s: %v", reqID, rel.Name, rel.Version, err)
		return
	}
	log.Printf("[%s] %s scheduled to build %s in %s", reqID, rel.Name, rel.Version, slot.Key)
	s.runHook(reg.Config.Hook, rel, slot.Key)
}

func (s *Server) buildFormat(packagerName string) []int64 {
	if packagerName != "bundler" {
		return nil
	}
	format := make([]int64, len(s.Config.GemFormat))
	for i, f := range s.Config.GemFormat {
		format[i] = int64(f)
	}
	return format
}

// runHook executes the configured notification command with {gem}, {slot}
// and {version} substituted in its arguments.
func (s *Server) runHook(hook []string, rel release, slotKey string) {
	if len(hook) == 0 {
		return
	}
	repl := strings.NewReplacer(
		"{gem}", rel.Name,
		"{slot}", slotKey,
		"{version}", rel.Version)
	args := make([]string, len(hook))
	for i, arg := range hook {
		args[i] = repl.Replace(arg)
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	log.Printf("exec %s", strings.Join(args, " "))
	run := s.Exec
	if run == nil {
		run = func(ctx context.Context, args []string) error {
			return exec.CommandContext(ctx, args[0], args[1:]...).Run()
		}
	}
	if err := run(ctx, args); err != nil {
		log.Printf("hook failed: %v", err)
	}
}

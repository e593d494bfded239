package runner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
)

func TestWireDryRunWithoutSources(t *testing.T) {
	c, _, err := cfg.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	c.DigestsDir = filepath.Join(t.TempDir(), "digests")
	c.FeedURLs = nil

	db, err := database.Connect(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	components, err := Wire(c, db)
	if err != nil {
		t.Fatal(err)
	}

	res := components.Runner.Run(context.Background())
	if res.Code != ExitOK || res.State != StateDone {
		t.Fatalf("Expected empty run to succeed, got %d/%s (%v)", res.Code, res.State, res.Err)
	}
	if res.Digest != nil {
		t.Error("Expected no digest without sources")
	}

	// The lease must be free again after the run.
	if _, ok, err := components.Settings.AcquireLease(context.Background(), LeaseName, DefaultLeaseTTL); err != nil || !ok {
		t.Errorf("Expected lease to be released, got ok=%v err=%v", ok, err)
	}
}

func TestWithOptions(t *testing.T) {
	r := New(Deps{}, Options{MaxItems: 5})
	preview := r.WithOptions(func(o *Options) { o.Preview = true })

	if !preview.opts.Preview || preview.opts.MaxItems != 5 {
		t.Errorf("Unexpected options %+v", preview.opts)
	}
	if r.opts.Preview {
		t.Error("Expected original runner to be unchanged")
	}
}

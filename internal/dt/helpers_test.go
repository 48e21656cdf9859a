package dt_test

import (
	"encoding/json"
	"path"
	"testing"

	"dt-go/internal/config"
	"dt-go/internal/dt"
	"dt-go/internal/testutil"
)

const remoteDir = "/var/www/app"

func targetConfig(count int) config.TargetConfig {
	return config.TargetConfig{
		Transport:    "ssh",
		Remote:       "web01",
		Port:         22,
		LocalDir:     "build",
		RemoteDir:    remoteDir,
		ReleaseCount: count,
		ReleaseDir:   "releases",
		PublicDir:    "current",
		BaseDomain:   "example.com",
	}
}

func newTarget(t *testing.T, cfg config.TargetConfig) (*dt.Target, *testutil.FakeRemote) {
	t.Helper()
	remote := testutil.NewFakeRemote()
	target, err := dt.NewTarget(cfg, remote, remote)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	return target, remote
}

// seedManifest writes a manifest tracking releases and creates a directory
// for each of them under root.
func seedManifest(t *testing.T, remote *testutil.FakeRemote, root string, releases ...dt.Release) {
	t.Helper()
	data, err := json.Marshal(releases)
	if err != nil {
		t.Fatal(err)
	}
	remote.AddFile(path.Join(remoteDir, dt.ManifestFile), string(data))
	for _, r := range releases {
		remote.MkdirAll(path.Join(root, r.Name))
	}
}

func rel(name string, at int64) dt.Release {
	return dt.Release{Name: name, Time: at}
}

// trackedNames reads the manifest from the remote, bypassing any cache.
func trackedNames(t *testing.T, remote *testutil.FakeRemote) []string {
	t.Helper()
	raw, ok := remote.ReadFile(path.Join(remoteDir, dt.ManifestFile))
	if !ok {
		return nil
	}
	var releases []dt.Release
	if err := json.Unmarshal([]byte(raw), &releases); err != nil {
		t.Fatalf("manifest on remote is not valid JSON: %v", err)
	}
	names := make([]string, len(releases))
	for i, r := range releases {
		names[i] = r.Name
	}
	return names
}


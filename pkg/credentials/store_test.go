package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreCRUD(t *testing.T) {
	store := NewStore()

	if err := store.Put(Credential{ID: "k1", Secret: []byte("sk-AAA"), Kind: "api_key"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cred, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(cred.Secret) != "sk-AAA" || cred.Kind != "api_key" {
		t.Errorf("Get = %+v", cred)
	}

	// Mutating the returned copy must not affect the store.
	cred.Secret[0] = 'X'
	again, _ := store.Get("k1")
	if string(again.Secret) != "sk-AAA" {
		t.Error("store secret was mutated through a returned copy")
	}

	if err := store.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("k1"); err == nil {
		t.Error("Get after Delete should fail")
	}

	var notFound *ErrNotFound
	if _, err := store.Get("missing"); !errors.As(err, &notFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("missing"); !errors.As(err, &notFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStorePutValidation(t *testing.T) {
	store := NewStore()
	if err := store.Put(Credential{Secret: []byte("x")}); err == nil {
		t.Error("Put without id should fail")
	}
	if err := store.Put(Credential{ID: "k"}); err == nil {
		t.Error("Put without secret should fail")
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore()
	for _, id := range []string{"b", "a", "c"} {
		if err := store.Put(Credential{ID: id, Secret: []byte("s")}); err != nil {
			t.Fatal(err)
		}
	}
	got := store.List()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("List = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStaticProvider(t *testing.T) {
	store := NewStore()
	p := NewStaticProvider([]Credential{
		{ID: "k1", Secret: []byte("one")},
		{ID: "k2", Secret: []byte("two")},
	})
	if err := p.Load(context.Background(), store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cred, _ := store.Get("k2"); string(cred.Secret) != "two" {
		t.Errorf("k2 = %+v", cred)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv(EnvPrefix+"OPENAI_KEY", "sk-env")

	store := NewStore()
	if err := NewEnvProvider().Load(context.Background(), store); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cred, err := store.Get("openai_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(cred.Secret) != "sk-env" {
		t.Errorf("secret = %q", cred.Secret)
	}
}

func TestFileProviderLoad(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "k1", "sk-file", 0o600)
	writeSecret(t, dir, "k2", "sk-two\n", 0o400)
	// Too-permissive files are skipped, not fatal.
	writeSecret(t, dir, "loose", "nope", 0o644)

	p, err := NewFileProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore()
	if err := p.Load(context.Background(), store); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cred, _ := store.Get("k1"); string(cred.Secret) != "sk-file" {
		t.Errorf("k1 = %+v", cred)
	}
	// Trailing whitespace is trimmed.
	if cred, _ := store.Get("k2"); string(cred.Secret) != "sk-two" {
		t.Errorf("k2 = %+v", cred)
	}
	if _, err := store.Get("loose"); err == nil {
		t.Error("world-readable file should not be loaded")
	}
}

func TestFileProviderWatch(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "k1", "v1", 0o600)

	p, err := NewFileProvider(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	store := NewStore()
	if err := p.Load(context.Background(), store); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeSecret(t, dir, "k1", "v2", 0o600)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cred, err := store.Get("k1"); err == nil && string(cred.Secret) == "v2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watched credential was not reloaded")
}

func writeSecret(t *testing.T, dir, name, value string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), perm); err != nil {
		t.Fatal(err)
	}
	// WriteFile does not chmod existing files.
	if err := os.Chmod(filepath.Join(dir, name), perm); err != nil {
		t.Fatal(err)
	}
}

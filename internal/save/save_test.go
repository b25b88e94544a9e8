package save

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"pgregory.net/rapid"

	"tycoon/internal/game"
	"tycoon/internal/market"
	"tycoon/internal/save/mocks"
)

var saveTime = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleState() game.GameState {
	st := game.DefaultState(saveTime)
	st.BalanceMicros = 1_234_567
	st.Level = 3
	st.Investments["savings"] = 4
	st.Businesses["lemonade"] = game.BusinessHolding{Quantity: 1, Owned: true}
	st.ActiveMultipliers[game.BoosterIncome] = game.ActiveMultiplier{
		Kind:        game.BoosterIncome,
		Magnitude:   2,
		ExpiresAtMs: saveTime.Add(time.Minute).UnixMilli(),
	}
	return st
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := game.DefaultState(time.UnixMilli(rapid.Int64Range(0, 1<<42).Draw(t, "created")))
		st.BalanceMicros = rapid.Int64Range(0, 1<<62).Draw(t, "balance")
		st.Level = rapid.Int64Range(1, 1_000).Draw(t, "level")
		st.Experience = rapid.Int64Range(0, 1<<20).Draw(t, "xp")
		if n := rapid.Int64Range(0, 500).Draw(t, "savings"); n > 0 {
			st.Investments["savings"] = n
		}
		if rapid.Bool().Draw(t, "boosted") {
			st.ActiveMultipliers[game.BoosterClick] = game.ActiveMultiplier{
				Kind:        game.BoosterClick,
				Magnitude:   rapid.Float64Range(1, 10).Draw(t, "magnitude"),
				ExpiresAtMs: rapid.Int64Range(0, 1<<42).Draw(t, "expires"),
			}
		}

		raw, err := Encode(st, saveTime)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		env, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(env.State, st) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", env.State, st)
		}
		if env.SaveID == "" || env.SavedAtMs != saveTime.UnixMilli() {
			t.Fatalf("missing envelope metadata: %+v", env)
		}
	})
}

func TestDecodeBareState(t *testing.T) {
	raw, err := game.EncodeState(sampleState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.State.BalanceMicros != 1_234_567 || env.SaveID != "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatalf("expected corrupt blob to fail")
	}
}

func TestValidateKey(t *testing.T) {
	for _, k := range []string{"default", "player-1", "A_b"} {
		if err := ValidateKey(k); err != nil {
			t.Fatalf("key %q: %v", k, err)
		}
	}
	for _, k := range []string{"", "../etc", "a b", "x/y"} {
		if err := ValidateKey(k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", k, err)
		}
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "profile")
	fb, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := fb.Get(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := fb.Put(ctx, "default", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := fb.Put(ctx, "default", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := fb.Get(ctx, "default")
	if err != nil || string(got) != `{"a":2}` {
		t.Fatalf("get %q %v", got, err)
	}
	info, err := os.Stat(fb.Path("default"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("save file mode %v", info.Mode().Perm())
	}
	if err := fb.Delete("default"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fb.Delete("default"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tycoon.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Get(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Put(ctx, "default", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "default", []byte("two")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "default")
	if err != nil || string(got) != "two" {
		t.Fatalf("get %q %v", got, err)
	}
	if err := reopened.Delete(ctx, "default"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := reopened.Get(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatalf("expected empty path to fail")
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a (x INT);\n" {
		t.Fatalf("got %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatalf("plain file should pass through")
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TYCOON_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TYCOON_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := ConnectPostgres(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	blob, err := Encode(sampleState(), saveTime)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Put(ctx, key, blob); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	env, err := Decode(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(env.State, sampleState()) {
		t.Fatalf("remote round trip mismatch")
	}
	if _, err := store.Get(ctx, "missing-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPersisterSaveWritesLocalThenRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockBackend(ctrl)
	remote := mocks.NewMockBackend(ctrl)
	local.EXPECT().Name().Return("local").AnyTimes()
	remote.EXPECT().Name().Return("remote").AnyTimes()

	var written []byte
	gomock.InOrder(
		local.EXPECT().Put(gomock.Any(), "default", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, blob []byte) error {
				written = blob
				return nil
			}),
		remote.EXPECT().Put(gomock.Any(), "default", gomock.Any()).Return(nil),
	)

	p := NewPersister(local, remote, "default", quietLogger())
	rep := p.Save(context.Background(), sampleState())
	if !rep.OK() || !rep.Remote || rep.SaveID == "" || rep.Bytes != len(written) {
		t.Fatalf("unexpected report %+v", rep)
	}
	env, err := Decode(written)
	if err != nil {
		t.Fatalf("decode written blob: %v", err)
	}
	if env.SaveID != rep.SaveID {
		t.Fatalf("save id mismatch")
	}
}

func TestPersisterSaveFailureIsReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockBackend(ctrl)
	remote := mocks.NewMockBackend(ctrl)
	local.EXPECT().Name().Return("local").AnyTimes()
	remote.EXPECT().Name().Return("remote").AnyTimes()

	diskFull := errors.New("disk full")
	local.EXPECT().Put(gomock.Any(), "default", gomock.Any()).Return(diskFull)
	remote.EXPECT().Put(gomock.Any(), "default", gomock.Any()).Return(nil)

	rep := NewPersister(local, remote, "default", quietLogger()).Save(context.Background(), sampleState())
	if rep.OK() || !errors.Is(rep.LocalErr, diskFull) || rep.RemoteErr != nil {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestPersisterLoadFallsBackToRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockBackend(ctrl)
	remote := mocks.NewMockBackend(ctrl)
	local.EXPECT().Name().Return("local").AnyTimes()
	remote.EXPECT().Name().Return("remote").AnyTimes()

	blob, err := Encode(sampleState(), saveTime)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	local.EXPECT().Get(gomock.Any(), "default").Return([]byte("{corrupt"), nil)
	remote.EXPECT().Get(gomock.Any(), "default").Return(blob, nil)

	st, src := NewPersister(local, remote, "default", quietLogger()).Load(context.Background(), saveTime)
	if src != SourceRemote {
		t.Fatalf("source %s", src)
	}
	if !reflect.DeepEqual(st, sampleState()) {
		t.Fatalf("loaded state mismatch")
	}
}

func TestPersisterLoadDefaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockBackend(ctrl)
	local.EXPECT().Name().Return("local").AnyTimes()
	local.EXPECT().Get(gomock.Any(), "default").Return(nil, ErrNotFound)

	st, src := NewPersister(local, nil, "default", quietLogger()).Load(context.Background(), saveTime)
	if src != SourceDefault {
		t.Fatalf("source %s", src)
	}
	if !reflect.DeepEqual(st, game.DefaultState(saveTime)) {
		t.Fatalf("expected default state, got %+v", st)
	}
}

func TestPersisterWithFileBackend(t *testing.T) {
	fb, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := NewPersister(fb, nil, "default", quietLogger())
	if rep := p.Save(context.Background(), sampleState()); !rep.OK() || rep.Remote {
		t.Fatalf("unexpected report %+v", rep)
	}
	st, src := p.Load(context.Background(), saveTime)
	if src != SourceLocal || !reflect.DeepEqual(st, sampleState()) {
		t.Fatalf("source %s state %+v", src, st)
	}
}

func TestPersisterKeepsCharts(t *testing.T) {
	fb, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m := market.New([]string{"bonds"}, "wild", market.WithSeed(5))
	for i := 0; i < 10; i++ {
		m.Walk()
	}
	p := NewPersister(fb, nil, "default", quietLogger())
	p.TrackCharts(m)
	if rep := p.Save(context.Background(), sampleState()); !rep.OK() {
		t.Fatalf("unexpected report %+v", rep)
	}
	env, src := p.LoadEnvelope(context.Background(), saveTime)
	if src != SourceLocal || env.Charts == nil {
		t.Fatalf("source %s charts %v", src, env.Charts)
	}
	bonds := env.Charts.Charts["bonds"]
	if bonds.Factor != m.Factor("bonds") || len(bonds.Points) != 11 {
		t.Fatalf("bonds chart %+v", bonds)
	}
}

package state

import (
	"testing"

	testutil "github.com/dl-alexandre/savegem/internal/testing"
	"github.com/spf13/afero"
)

func TestStore_LoadDefaults(t *testing.T) {
	st, err := NewStore(afero.NewMemMapFs(), "/cfg").Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st, AppState{Locale: DefaultLocale})
}

func TestStore_SaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/cfg")

	want := AppState{SelectedGame: "Alpha", Locale: "pl", AutoMode: true}
	testutil.AssertNoError(t, store.Save(want))

	got, err := NewStore(fs, "/cfg").Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, want)

	if exists, _ := afero.Exists(fs, "/cfg/state.json.tmp"); exists {
		t.Error("temporary file left behind")
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/cfg")
	testutil.AssertNoError(t, store.Save(AppState{SelectedGame: "Alpha"}))

	st, err := store.Update(func(s *AppState) { s.AutoMode = true })
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st.SelectedGame, "Alpha")
	testutil.AssertEqual(t, st.AutoMode, true)

	reloaded, _ := store.Load()
	testutil.AssertEqual(t, reloaded, st)
}

func TestStore_CorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, "/cfg", map[string]string{"state.json": "{"})

	st, err := NewStore(fs, "/cfg").Load()
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, st.Locale, DefaultLocale)
}

func TestStore_GUIFlag(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/cfg")

	if store.GUIInitialized() {
		t.Fatal("flag set before marking")
	}
	testutil.AssertNoError(t, store.MarkGUIInitialized())
	if !store.GUIInitialized() {
		t.Fatal("flag not set after marking")
	}
	testutil.AssertNoError(t, store.ClearGUIInitialized())
	testutil.AssertNoError(t, store.ClearGUIInitialized())
	if store.GUIInitialized() {
		t.Error("flag still set after clearing")
	}
}

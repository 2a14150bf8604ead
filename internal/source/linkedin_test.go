package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firmenradar/internal/model"
	"github.com/sells-group/firmenradar/internal/resilience"
	"github.com/sells-group/firmenradar/internal/session"
)

func testSessionManager(t *testing.T, blob string) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	if blob != "" {
		require.NoError(t, mgr.Put(LinkedIn, blob))
	}
	return mgr
}

func TestLinkedIn_FetchAboutPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("li_at")
		require.NoError(t, err)
		assert.Equal(t, "valid-blob", ck.Value)
		assert.Equal(t, "/company/magna-real-estate-gmbh/about/", r.URL.Path)
		w.Write([]byte("<html><dt>Website</dt><dd>https://magna.example</dd></html>"))
	}))
	defer srv.Close()

	mgr := testSessionManager(t, "valid-blob")
	adapter := NewLinkedIn(LinkedInConfig{
		BaseURL:     srv.URL,
		ArtifactDir: t.TempDir(),
	}, testFetchClient(), mgr)

	sess, err := mgr.Load(LinkedIn)
	require.NoError(t, err)

	payload, err := adapter.Fetch(context.Background(),
		model.CompanyIdentity{CompanyName: "MAGNA Real Estate GmbH"}, sess)
	require.NoError(t, err)

	require.Len(t, payload.Documents, 1)
	assert.Equal(t, model.FieldAboutHTML, payload.Documents[0].Name)
	assert.True(t, mgr.IsValid(LinkedIn), "successful fetch keeps session valid")
}

func TestLinkedIn_EmptyBlobIsAuthExpired(t *testing.T) {
	adapter := NewLinkedIn(LinkedInConfig{}, testFetchClient(), testSessionManager(t, ""))

	_, err := adapter.Fetch(context.Background(),
		model.CompanyIdentity{CompanyName: "ACME"}, session.State{})
	require.Error(t, err)
	assert.Equal(t, resilience.KindAuthExpired, resilience.KindOf(err))
}

func TestLinkedIn_AuthWallInvalidatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/authwall" {
			w.Write([]byte("<html>join to view</html>"))
			return
		}
		http.Redirect(w, r, "/authwall", http.StatusFound)
	}))
	defer srv.Close()

	mgr := testSessionManager(t, "stale-blob")
	adapter := NewLinkedIn(LinkedInConfig{
		BaseURL:     srv.URL,
		ArtifactDir: t.TempDir(),
	}, testFetchClient(), mgr)

	sess, err := mgr.Load(LinkedIn)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(),
		model.CompanyIdentity{CompanyName: "ACME"}, sess)
	require.Error(t, err)
	assert.Equal(t, resilience.KindAuthExpired, resilience.KindOf(err))
	assert.False(t, mgr.IsValid(LinkedIn), "authwall must invalidate the stored session")
}

func TestLinkedIn_CompanyNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>Page not found</html>"))
	}))
	defer srv.Close()

	mgr := testSessionManager(t, "valid-blob")
	adapter := NewLinkedIn(LinkedInConfig{
		BaseURL:     srv.URL,
		ArtifactDir: t.TempDir(),
	}, testFetchClient(), mgr)

	sess, err := mgr.Load(LinkedIn)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(),
		model.CompanyIdentity{CompanyName: "Ghost GmbH"}, sess)
	require.Error(t, err)
	assert.Equal(t, resilience.KindRecordNotFound, resilience.KindOf(err))
	assert.True(t, mgr.IsValid(LinkedIn), "not-found must not invalidate the session")
}

func TestCompanySlug(t *testing.T) {
	cases := map[string]string{
		"MAGNA Real Estate GmbH": "magna-real-estate-gmbh",
		"Müller & Söhne":         "m-ller-and-s-hne",
		"  ACME  ":               "acme",
	}
	for in, want := range cases {
		assert.Equal(t, want, companySlug(in), in)
	}
}

package jellyfin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gapscan/internal/library"
	"gapscan/internal/library/jellyfin"
	"gapscan/internal/services"
)

func newTestClient(t *testing.T, userID string, handler http.HandlerFunc) *jellyfin.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/Library/VirtualFolders" {
			_, _ = w.Write([]byte(`[
				{"Name":"Movies","ItemId":"m1","CollectionType":"movies"},
				{"Name":"Shows","ItemId":"s1","CollectionType":"tvshows"},
				{"Name":"Music","ItemId":"x1","CollectionType":"music"}]`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	client, err := jellyfin.New(server.URL, "key", userID, jellyfin.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestLibraries(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {})
	sections, err := client.Libraries(context.Background())
	if err != nil {
		t.Fatalf("Libraries returned error: %v", err)
	}
	if len(sections) != 3 || sections[1].Kind != library.KindShows || sections[2].Kind != library.KindOther {
		t.Fatalf("unexpected sections %#v", sections)
	}
}

func TestListOwnedMovies(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/Items" || q.Get("ParentId") != "m1" || q.Get("IncludeItemTypes") != "Movie" || q.Get("Recursive") != "true" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"TotalRecordCount":2,"Items":[
			{"Id":"a","Name":"The Matrix","ProductionYear":1999,"ProviderIds":{"Tmdb":"603","Imdb":"tt0133093"},"Path":"/m/matrix.mkv"},
			{"Id":"b","Name":"Unknown","ProviderIds":{"TMDB":"abc"}}]}`))
	})
	movies, err := client.ListOwnedMovies(context.Background(), "movies")
	if err != nil {
		t.Fatalf("ListOwnedMovies returned error: %v", err)
	}
	if len(movies) != 2 || movies[0].ID != 603 || movies[0].File != "/m/matrix.mkv" || movies[1].ID != 0 {
		t.Fatalf("unexpected movies %#v", movies)
	}
}

func TestListOwnedShowsScopedToUser(t *testing.T) {
	client := newTestClient(t, "u1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/u1/Items" {
			t.Errorf("expected user-scoped items path, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"TotalRecordCount":1,"Items":[{"Id":"show1","Name":"Show","ProviderIds":{"tvdb":"81189"}}]}`))
	})
	shows, err := client.ListOwnedShows(context.Background(), "Shows")
	if err != nil {
		t.Fatalf("ListOwnedShows returned error: %v", err)
	}
	if len(shows) != 1 || shows[0].ID != 81189 || shows[0].Key != "show1" {
		t.Fatalf("unexpected shows %#v", shows)
	}
}

func TestListEpisodesExpandsRanges(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Shows/show1/Episodes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"Items":[
			{"Name":"Pilot","ParentIndexNumber":1,"IndexNumber":1,"IndexNumberEnd":2,"Path":"/tv/S01E01-E02.mkv"},
			{"Name":"Three","ParentIndexNumber":1,"IndexNumber":3,"Path":"/tv/S01E03.mkv"}]}`))
	})
	episodes, err := client.ListEpisodes(context.Background(), library.ShowRef{Key: "show1", ID: 81189})
	if err != nil {
		t.Fatalf("ListEpisodes returned error: %v", err)
	}
	if len(episodes) != 3 || episodes[1].Episode != 2 || episodes[2].Episode != 3 || episodes[0].ShowID != 81189 {
		t.Fatalf("unexpected episodes %#v", episodes)
	}
}

func TestBadKeyIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	client, err := jellyfin.New(server.URL, "bad", "", jellyfin.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.Libraries(context.Background()); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

package twin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/twinsync-io/twinsync/internal/apiclient"
)

func TestGetThing_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1alpha1/things/factory-a/things/dev-1/sensor" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(NewThing("factory-a", "dev-1/sensor")) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, apiclient.Auth{}, 0)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	thing, err := c.GetThing(context.Background(), "factory-a", "dev-1/sensor")
	if err != nil {
		t.Fatalf("GetThing() error = %v", err)
	}
	if thing == nil || thing.Metadata.Name != "dev-1/sensor" {
		t.Errorf("thing = %+v", thing)
	}
}

func TestGetThing_Absent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, apiclient.Auth{}, 0)

	thing, err := c.GetThing(context.Background(), "factory-a", "gone")
	if err != nil {
		t.Fatalf("GetThing() error = %v, want nil for absent thing", err)
	}
	if thing != nil {
		t.Errorf("thing = %+v, want nil", thing)
	}
}

func TestDeleteThing_PriorExistence(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, apiclient.Auth{}, 0)

	existed, err := c.DeleteThing(context.Background(), "factory-a", "dev-1/sensor")
	if err != nil || !existed {
		t.Fatalf("DeleteThing() = (%v, %v), want (true, nil)", existed, err)
	}

	status = http.StatusNotFound
	existed, err = c.DeleteThing(context.Background(), "factory-a", "dev-1/sensor")
	if err != nil || existed {
		t.Fatalf("DeleteThing() on absent = (%v, %v), want (false, nil)", existed, err)
	}
}

func TestCreateThing_ConflictClassifiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, apiclient.Auth{}, 0)

	err := c.CreateThing(context.Background(), NewThing("factory-a", "dev-1/sensor"))
	if err == nil {
		t.Fatal("CreateThing() error = nil, want conflict")
	}
	if !apiclient.IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true through wrapping", err)
	}
}

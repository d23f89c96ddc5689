package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/snaporm/internal/database"
	"github.com/MarcoPoloResearchLab/snaporm/internal/library"
	"go.uber.org/zap"
)

type counterIDs struct {
	next int
}

func (c *counterIDs) NewID() (string, error) {
	c.next++
	return fmt.Sprintf("id-%d", c.next), nil
}

func TestEventStreamEmitsBookChangeEvents(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "stream.db"), zap.NewNop(), database.Options{
		Models:     library.Models(),
		Migrations: library.Migrations(),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	service, err := library.NewService(library.ServiceConfig{Database: db, IDProvider: &counterIDs{}})
	if err != nil {
		t.Fatalf("failed to construct library service: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler := newTestHandler(t, service, dispatcher)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	streamResp, err := http.Get(server.URL + "/events")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	streamReader := bufio.NewReader(streamResp.Body)

	authorResp, err := http.Post(server.URL+"/authors", "application/json", bytes.NewBufferString(`{"name":"Lem"}`))
	if err != nil {
		t.Fatalf("create author request failed: %v", err)
	}
	var author library.AuthorView
	if err := json.NewDecoder(authorResp.Body).Decode(&author); err != nil {
		t.Fatalf("failed to decode author: %v", err)
	}
	_ = authorResp.Body.Close()

	bookResp, err := http.Post(server.URL+"/authors/"+author.ID+"/books", "application/json", bytes.NewBufferString(`{"title":"Solaris","published_year":1961}`))
	if err != nil {
		t.Fatalf("add book request failed: %v", err)
	}
	if bookResp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected add book status: %d", bookResp.StatusCode)
	}
	var book library.BookView
	if err := json.NewDecoder(bookResp.Body).Decode(&book); err != nil {
		t.Fatalf("failed to decode book: %v", err)
	}
	_ = bookResp.Body.Close()

	currentEventType := ""
	deadline := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for book event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventBookChanged {
				continue
			}
			var payload realtimeEventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if len(payload.IDs) != 1 || payload.IDs[0] != book.ID {
				t.Fatalf("unexpected book identifiers: %#v", payload.IDs)
			}
			if payload.Source != realtimeSourceBackend {
				t.Fatalf("unexpected source %q", payload.Source)
			}
			return
		}
	}
}

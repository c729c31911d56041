package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

type auditPage struct {
	Data    []entities.AuditEvent `json:"data"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	HasMore bool                  `json:"has_more"`
}

func decodeAuditPage(t *testing.T, body []byte) auditPage {
	t.Helper()
	var page auditPage
	require.NoError(t, json.Unmarshal(body, &page))
	return page
}

func TestAuditController_ListsOwnEvents(t *testing.T) {
	app := setupApp(t)
	router := app.router()
	ada := app.signedIn(t, router, "ada@example.com")
	app.signedIn(t, router, "bob@example.com")
	app.audit.Wait()

	rr := ada.get("/api/audit")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decodeAuditPage(t, rr.Body.Bytes())
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "ada@example.com", page.Data[0].Email)
	assert.Equal(t, entities.AuditActionSignIn, page.Data[0].Action)
	assert.Equal(t, entities.AuditStatusSuccess, page.Data[0].Status)
}

func TestAuditController_FiltersAndPaginates(t *testing.T) {
	app := setupApp(t)
	router := app.router()
	ada := app.signedIn(t, router, "ada@example.com")
	for i := 0; i < 3; i++ {
		ada.postJSON("/api/auth/signin", map[string]string{"email": "ada@example.com", "password": "wrong-password"})
	}
	app.audit.Wait()

	rr := ada.get("/api/audit?action=sign_in&limit=2")
	page := decodeAuditPage(t, rr.Body.Bytes())
	assert.Equal(t, int64(4), page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)

	rr = ada.get("/api/audit?action=sign_out")
	assert.Empty(t, decodeAuditPage(t, rr.Body.Bytes()).Data)
}

func TestAuditController_AdminMayQueryOthers(t *testing.T) {
	app := setupApp(t)
	router := app.router()
	ada := app.signedIn(t, router, "ada@example.com")
	admin := app.signedIn(t, router, adminEmail)
	app.audit.Wait()

	rr := admin.get("/api/audit?email=ADA@example.com")
	page := decodeAuditPage(t, rr.Body.Bytes())
	require.Len(t, page.Data, 1)
	assert.Equal(t, "ada@example.com", page.Data[0].Email)

	// Non-admins cannot widen the scope.
	rr = ada.get("/api/audit?email=" + adminEmail)
	page = decodeAuditPage(t, rr.Body.Bytes())
	require.Len(t, page.Data, 1)
	assert.Equal(t, "ada@example.com", page.Data[0].Email)
}

func TestAuditController_GetEvent(t *testing.T) {
	app := setupApp(t)
	router := app.router()
	ada := app.signedIn(t, router, "ada@example.com")
	bob := app.signedIn(t, router, "bob@example.com")
	admin := app.signedIn(t, router, adminEmail)
	app.audit.Wait()

	page := decodeAuditPage(t, ada.get("/api/audit").Body.Bytes())
	require.Len(t, page.Data, 1)
	path := fmt.Sprintf("/api/audit/%d", page.Data[0].ID)

	rr := ada.get(path)
	require.Equal(t, http.StatusOK, rr.Code)
	var event entities.AuditEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &event))
	assert.Equal(t, page.Data[0].ID, event.ID)

	assert.Equal(t, http.StatusNotFound, bob.get(path).Code)
	assert.Equal(t, http.StatusOK, admin.get(path).Code)
	assert.Equal(t, http.StatusNotFound, ada.get("/api/audit/99999").Code)
	assert.Equal(t, http.StatusBadRequest, ada.get("/api/audit/abc").Code)
}

func TestAuditController_RequiresSignIn(t *testing.T) {
	rr := newClient(t, setupApp(t).router()).get("/api/audit")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkline/tutoring-office/api"
	"github.com/chalkline/tutoring-office/sessions"
	"github.com/chalkline/tutoring-office/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := sessions.NewService(store, nil)
	handler := api.NewHandler(store, svc, nil)
	server := httptest.NewServer(api.NewRouter(handler, nil))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createStudent(t *testing.T, server *httptest.Server, name, balance string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/students", map[string]any{
		"name":        name,
		"hourBalance": balance,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func createTeacherWithRate(t *testing.T, server *httptest.Server, rate string) (teacherID, rateID string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/teachers", map[string]any{
		"name": "Ms. Price",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	teacherID = body["id"].(string)

	resp, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/teachers/%s/rates", server.URL, teacherID),
		map[string]any{"name": "Standard", "rate": rate})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return teacherID, body["id"].(string)
}

func sessionPayload(teacherID, rateID, hours string, studentIDs ...string) map[string]any {
	return map[string]any{
		"date":              "2026-04-02T17:00:00Z",
		"teacherId":         teacherID,
		"teacherHourRateId": rateID,
		"hours":             hours,
		"studentIds":        studentIDs,
	}
}

// =============================================================================
// STUDENTS
// =============================================================================

func TestAPI_CreateAndGetStudent(t *testing.T) {
	server := newTestServer(t)

	id := createStudent(t, server, "Alice", "3.5")

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/students/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice", body["name"])
	assert.Equal(t, "3.5", body["hourBalance"])
}

func TestAPI_CreateStudent_RejectsNegativeBalance(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/students", map[string]any{
		"name":        "Alice",
		"hourBalance": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateStudent_RejectsMissingName(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/students", map[string]any{
		"hourBalance": "1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetStudent_NotFound(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/students/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

func TestAPI_CreateClassSession_RecordsDebt(t *testing.T) {
	// GIVEN: A student with half an hour prepaid
	// WHEN: Booking a 2-hour session over the API
	// THEN: The response carries the recorded 1.5-hour debt
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "0.5")
	teacherID, rateID := createTeacherWithRate(t, server, "40")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions",
		sessionPayload(teacherID, rateID, "2", studentID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	debts := body["debts"].([]any)
	require.Len(t, debts, 1)
	debt := debts[0].(map[string]any)
	assert.Equal(t, studentID, debt["studentId"])
	assert.Equal(t, "1.5", debt["hours"])
	assert.Equal(t, "60", debt["amount"])

	// The student's stored balance was drained.
	_, student := doJSON(t, http.MethodGet, server.URL+"/api/students/"+studentID, nil)
	assert.Equal(t, "0", student["hourBalance"])
}

func TestAPI_CreateClassSession_InvalidHours(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "1")
	teacherID, rateID := createTeacherWithRate(t, server, "40")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions",
		sessionPayload(teacherID, rateID, "0", studentID))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateClassSession_StalePlan_Conflict(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "5")
	teacherID, rateID := createTeacherWithRate(t, server, "40")

	payload := sessionPayload(teacherID, rateID, "2", studentID)
	payload["calculatedDebts"] = []map[string]any{{
		"studentId":     studentID,
		"debt":          map[string]any{"kind": "create", "hours": "2"},
		"balanceAction": map[string]any{"kind": "set", "amount": "0"},
	}}

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions", payload)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_DeleteClassSession(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "5")
	teacherID, rateID := createTeacherWithRate(t, server, "40")

	_, created := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions",
		sessionPayload(teacherID, rateID, "2", studentID))
	sessionID := created["id"].(string)

	resp, _ := doJSON(t, http.MethodDelete, server.URL+"/api/class-sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/class-sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Hours came back.
	_, student := doJSON(t, http.MethodGet, server.URL+"/api/students/"+studentID, nil)
	assert.Equal(t, "5", student["hourBalance"])
}

func TestAPI_PreviewDebt_WritesNothing(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "1")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions/preview-debt",
		map[string]any{"hours": "2", "studentIds": []string{studentID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	plan := body["calculatedDebts"].([]any)
	require.Len(t, plan, 1)
	entry := plan[0].(map[string]any)
	debt := entry["debt"].(map[string]any)
	assert.Equal(t, "create", debt["kind"])
	assert.Equal(t, "1", debt["hours"])

	_, student := doJSON(t, http.MethodGet, server.URL+"/api/students/"+studentID, nil)
	assert.Equal(t, "1", student["hourBalance"])
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAPI_PayDebts(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "0")
	teacherID, rateID := createTeacherWithRate(t, server, "40")

	_, created := doJSON(t, http.MethodPost, server.URL+"/api/class-sessions",
		sessionPayload(teacherID, rateID, "2", studentID))
	debtID := created["debts"].([]any)[0].(map[string]any)["id"].(string)

	resp, payment := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/students/%s/payments", server.URL, studentID),
		map[string]any{"debtIds": []string{debtID}, "method": "cash"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "80", payment["amount"])

	// Paying the same debt again conflicts.
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/students/%s/payments", server.URL, studentID),
		map[string]any{"debtIds": []string{debtID}, "method": "cash"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The payment shows up in the student's history.
	resp, payments := doJSONList(t, fmt.Sprintf("%s/api/students/%s/payments", server.URL, studentID))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, payments, 1)
	assert.Equal(t, "cash", payments[0]["method"])
}

func TestAPI_StudentDebts(t *testing.T) {
	server := newTestServer(t)
	studentID := createStudent(t, server, "Bob", "0")
	teacherID, rateID := createTeacherWithRate(t, server, "30")

	_, _ = doJSON(t, http.MethodPost, server.URL+"/api/class-sessions",
		sessionPayload(teacherID, rateID, "1.5", studentID))

	resp, debts := doJSONList(t, server.URL+"/api/students/"+studentID+"/debts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, debts, 1)
	assert.Equal(t, "1.5", debts[0]["hours"])
	assert.Equal(t, false, debts[0]["restored"])
}

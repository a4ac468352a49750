package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/climalink/climalink-core/internal/auth"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
	"github.com/climalink/climalink-core/internal/infrastructure/logging"
)

// fakeAuth resolves tokens of the form "token-<role>" without signatures so
// handler tests can exercise role gates directly.
type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, email, password string) (*auth.Session, error) {
	if email == "ops@example.com" && password == "swordfish" {
		return &auth.Session{
			User:         &auth.User{ID: "user-1", Email: email, Role: auth.RoleOperator},
			AccessToken:  "token-operator",
			RefreshToken: "refresh-1",
		}, nil
	}
	return nil, auth.ErrInvalidCredentials
}

func (fakeAuth) Refresh(_ context.Context, token string) (*auth.Session, error) {
	if token != "refresh-1" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Session{
		User:         &auth.User{ID: "user-1", Role: auth.RoleOperator},
		AccessToken:  "token-operator",
		RefreshToken: "refresh-2",
	}, nil
}

func (fakeAuth) Logout(context.Context, string) error { return nil }

func (fakeAuth) VerifyAccess(token string) (*auth.Claims, error) {
	roles := map[string]auth.Role{
		"token-viewer":   auth.RoleViewer,
		"token-operator": auth.RoleOperator,
		"token-admin":    auth.RoleAdmin,
	}
	role, ok := roles[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	claims := &auth.Claims{Role: role}
	claims.Subject = "user-" + string(role)
	return claims, nil
}

type fakeDeviceService struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	models  map[string]*device.Model
}

func newFakeDeviceService() *fakeDeviceService {
	return &fakeDeviceService{
		devices: make(map[string]*device.Device),
		models:  make(map[string]*device.Model),
	}
}

func (f *fakeDeviceService) GetDevice(_ context.Context, id string) (*device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, device.ErrNotFound
	}
	return d.DeepCopy(), nil
}

func (f *fakeDeviceService) GetDeviceModel(_ context.Context, id string) (*device.Device, *device.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, nil, device.ErrNotFound
	}
	m, ok := f.models[d.ModelID]
	if !ok {
		return nil, nil, device.ErrNotFound
	}
	return d.DeepCopy(), m, nil
}

func (f *fakeDeviceService) ListDevices(_ context.Context) ([]device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]device.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (f *fakeDeviceService) ListDevicesByLocation(_ context.Context, locationID string) ([]device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []device.Device
	for _, d := range f.devices {
		if d.LocationID != nil && *d.LocationID == locationID {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (f *fakeDeviceService) CreateDevice(_ context.Context, d *device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == "" {
		d.ID = fmt.Sprintf("dev-%d", len(f.devices)+1)
	}
	f.devices[d.ID] = d.DeepCopy()
	return nil
}

func (f *fakeDeviceService) UpdateDevice(_ context.Context, d *device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[d.ID]; !ok {
		return device.ErrNotFound
	}
	f.devices[d.ID] = d.DeepCopy()
	return nil
}

func (f *fakeDeviceService) DeleteDevice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[id]; !ok {
		return device.ErrNotFound
	}
	delete(f.devices, id)
	return nil
}

func (f *fakeDeviceService) GetStatus(_ context.Context, deviceID string) (*device.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[deviceID]; !ok {
		return nil, device.ErrNotFound
	}
	return &device.Status{DeviceID: deviceID, IsOnline: true, Timestamp: time.Now()}, nil
}

type fakeCommandService struct {
	mu       sync.Mutex
	sendErr  error
	failWith *command.Command
	sent     []command.Type
	released []string
}

func (f *fakeCommandService) SendCommand(_ context.Context, deviceID string, userID *string, typ command.Type, params command.Parameters) (*command.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, typ)
	if f.sendErr != nil {
		return f.failWith, f.sendErr
	}
	now := time.Now()
	return &command.Command{
		ID:       "cmd-1",
		DeviceID: deviceID,
		UserID:   userID,
		Type:     typ,
		Params:   params,
		Status:   command.StatusCompleted,
		Executed: &now,
	}, nil
}

func (f *fakeCommandService) RefreshDeviceStatus(context.Context, string) error { return nil }

func (f *fakeCommandService) ReleaseAdapter(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, deviceID)
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeDeviceService, *fakeCommandService) {
	t.Helper()

	devices := newFakeDeviceService()
	devices.models["model-1"] = &device.Model{
		ID: "model-1", BrandID: "brand-1", Name: "CoolFlow 3000",
		ProtocolType: device.ProtocolMQTT, MinTemperature: 16, MaxTemperature: 30,
	}
	devices.devices["dev-1"] = &device.Device{
		ID: "dev-1", Name: "Lobby AC", SerialNumber: "CF3K-001",
		ModelID: "model-1", Status: device.StatusOnline,
	}

	control := &fakeCommandService{}

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  logging.Default(),
		Devices: devices,
		Control: control,
		Auth:    fakeAuth{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.hub = NewHub(config.WebSocketConfig{}, logging.Default())
	return srv, devices, control
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for bad token", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "ops@example.com", "password": "swordfish"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var sess auth.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	if sess.AccessToken == "" {
		t.Fatal("session missing access token")
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "ops@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for bad credentials", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/", "token-viewer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/ghost", "token-viewer", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestViewerCannotSendCommands(t *testing.T) {
	srv, _, control := newTestServer(t)

	power := true
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/dev-1/commands", "token-viewer",
		sendCommandRequest{Type: command.TypeSetPower, Params: command.Parameters{Power: &power}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(control.sent) != 0 {
		t.Fatal("command reached the control manager despite 403")
	}
}

func TestOperatorSendsCommand(t *testing.T) {
	srv, _, control := newTestServer(t)

	power := true
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/dev-1/commands", "token-operator",
		sendCommandRequest{Type: command.TypeSetPower, Params: command.Parameters{Power: &power}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var cmd command.Command
	if err := json.Unmarshal(rec.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if cmd.Status != command.StatusCompleted {
		t.Errorf("status = %s, want completed", cmd.Status)
	}
	if cmd.UserID == nil || *cmd.UserID != "user-operator" {
		t.Error("command not attributed to the caller")
	}
	if len(control.sent) != 1 || control.sent[0] != command.TypeSetPower {
		t.Errorf("sent = %v", control.sent)
	}
}

func TestFailedCommandReturnsRecordAndError(t *testing.T) {
	srv, _, control := newTestServer(t)

	msg := "device rejected value"
	control.sendErr = fmt.Errorf("%s", msg)
	control.failWith = &command.Command{
		ID: "cmd-9", DeviceID: "dev-1", Type: command.TypeSetTemperature,
		Status: command.StatusFailed, Error: &msg,
	}

	temp := 22.5
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/dev-1/commands", "token-operator",
		sendCommandRequest{Type: command.TypeSetTemperature, Params: command.Parameters{Temperature: &temp}})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Command command.Command `json:"command"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Command.Status != command.StatusFailed {
		t.Errorf("command status = %s, want failed", resp.Command.Status)
	}
	if resp.Error != msg {
		t.Errorf("error = %q, want %q", resp.Error, msg)
	}
}

func TestValidationErrorWithoutRecord(t *testing.T) {
	srv, _, control := newTestServer(t)

	control.sendErr = command.ErrInvalidParameters
	control.failWith = nil

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/dev-1/commands", "token-operator",
		sendCommandRequest{Type: command.TypeSetPower})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateDeviceRequiresManagePermission(t *testing.T) {
	srv, devices, _ := newTestServer(t)

	body := createDeviceRequest{Name: "Roof AC", SerialNumber: "CF3K-002", ModelID: "model-1"}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/", "token-operator", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for operator", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/devices/", "token-admin", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	devices.mu.Lock()
	defer devices.mu.Unlock()
	if len(devices.devices) != 2 {
		t.Errorf("device count = %d, want 2", len(devices.devices))
	}
}

func TestDeleteDeviceReleasesAdapter(t *testing.T) {
	srv, devices, control := newTestServer(t)

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/devices/dev-1", "token-admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	devices.mu.Lock()
	_, exists := devices.devices["dev-1"]
	devices.mu.Unlock()
	if exists {
		t.Error("device still present after delete")
	}

	// The deleted device's broker session must be torn down with it.
	control.mu.Lock()
	released := append([]string(nil), control.released...)
	control.mu.Unlock()
	if len(released) != 1 || released[0] != "dev-1" {
		t.Errorf("released adapters = %v, want [dev-1]", released)
	}

	// Deleting an unknown device reports not found and releases nothing.
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/devices/ghost", "token-admin", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.released) != 1 {
		t.Errorf("released adapters = %v, want only dev-1", control.released)
	}
}

func TestWSTicketSingleUse(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", "token-operator", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding ticket: %v", err)
	}

	entry, ok := srv.validateTicket(resp.Ticket)
	if !ok {
		t.Fatal("fresh ticket rejected")
	}
	if entry.userID != "user-operator" {
		t.Errorf("ticket user = %q", entry.userID)
	}
	if _, ok := srv.validateTicket(resp.Ticket); ok {
		t.Fatal("ticket accepted twice")
	}
}

package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// TestKeyPair holds a test RSA key pair.
type TestKeyPair struct {
	PrivateKey    *rsa.PrivateKey
	PrivatePEM    string
	PublicPEM     string
	PublicKeyPKIX string
}

// GenerateTestKeyPair creates a test RSA key pair for signing fixtures.
func GenerateTestKeyPair() (*TestKeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return &TestKeyPair{
		PrivateKey:    privateKey,
		PrivatePEM:    string(privatePEM),
		PublicPEM:     string(publicPEM),
		PublicKeyPKIX: string(publicPEM),
	}, nil
}

// MockActivityPubServer is a minimal remote-peer stand-in for webfinger/actor/inbox fetches.
type MockActivityPubServer struct {
	Server           *httptest.Server
	ReceivedRequests []ReceivedRequest
	ActorResponse    *ActorResponse
	WebFingerHandler func(w http.ResponseWriter, r *http.Request)
	ActorHandler     func(w http.ResponseWriter, r *http.Request)
	InboxHandler     func(w http.ResponseWriter, r *http.Request)
}

// ReceivedRequest stores details of a request received by MockActivityPubServer.
type ReceivedRequest struct {
	Method      string
	Path        string
	Headers     http.Header
	Body        []byte
	ContentType string
}

// NewMockActivityPubServer starts a mock server with default webfinger/actor/inbox routes.
func NewMockActivityPubServer() *MockActivityPubServer {
	mock := &MockActivityPubServer{
		ReceivedRequests: []ReceivedRequest{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/webfinger", func(w http.ResponseWriter, r *http.Request) {
		if mock.WebFingerHandler != nil {
			mock.WebFingerHandler(w, r)
			return
		}
		resource := r.URL.Query().Get("resource")
		if resource == "" {
			http.Error(w, "resource required", http.StatusBadRequest)
			return
		}
		response := map[string]any{
			"subject": resource,
			"links": []map[string]string{
				{
					"rel":  "self",
					"type": "application/activity+json",
					"href": mock.Server.URL + "/users/testuser",
				},
			},
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		if mock.ActorHandler != nil {
			mock.ActorHandler(w, r)
			return
		}
		if mock.ActorResponse != nil {
			w.Header().Set("Content-Type", "application/activity+json")
			json.NewEncoder(w).Encode(mock.ActorResponse)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/inbox", func(w http.ResponseWriter, r *http.Request) {
		mock.recordRequest(r)
		if mock.InboxHandler != nil {
			mock.InboxHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockActivityPubServer) recordRequest(r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}
	m.ReceivedRequests = append(m.ReceivedRequests, ReceivedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     r.Header.Clone(),
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
	})
}

// Close shuts down the mock server.
func (m *MockActivityPubServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// SetActorResponse sets the actor document served for any /users/ request.
func (m *MockActivityPubServer) SetActorResponse(actor *ActorResponse) {
	m.ActorResponse = actor
}

// CreateTestActorResponse builds a minimal actor document for a remote peer.
func CreateTestActorResponse(serverURL, username string, publicKeyPEM string) *ActorResponse {
	resp := &ActorResponse{
		Context:           "https://www.w3.org/ns/activitystreams",
		ID:                serverURL + "/users/" + username,
		Type:              "Person",
		PreferredUsername: username,
		Name:              "Test User " + username,
		Summary:           "A test user",
		Inbox:             serverURL + "/users/" + username + "/inbox",
		Outbox:            serverURL + "/users/" + username + "/outbox",
	}
	resp.PublicKey.Id = serverURL + "/users/" + username + "#main-key"
	resp.PublicKey.Owner = serverURL + "/users/" + username
	resp.PublicKey.PublicKeyPem = publicKeyPEM
	return resp
}

// CreateTestAccount builds a local domain.Account fixture.
func CreateTestAccount(username string, keypair *TestKeyPair) *domain.Account {
	return &domain.Account{
		Id:             uuid.New(),
		Username:       username,
		Publickey:      "testhash123",
		CreatedAt:      time.Now(),
		FirstTimeLogin: domain.FALSE,
		WebPublicKey:   keypair.PublicPEM,
		WebPrivateKey:  keypair.PrivatePEM,
		DisplayName:    "Test " + username,
		Summary:        "Test account",
	}
}

// CreateTestRemoteAccount builds a domain.RemoteAccount fixture for a mock peer.
func CreateTestRemoteAccount(serverURL, username, publicKeyPEM string) *domain.RemoteAccount {
	return &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      username,
		Domain:        extractDomainFromURL(serverURL),
		ActorURI:      serverURL + "/users/" + username,
		DisplayName:   "Remote " + username,
		Summary:       "A remote test account",
		InboxURI:      serverURL + "/users/" + username + "/inbox",
		OutboxURI:     serverURL + "/users/" + username + "/outbox",
		PublicKeyPem:  publicKeyPEM,
		LastFetchedAt: time.Now(),
	}
}

// extractDomainFromURL strips the scheme prefix from a URL, keeping everything
// after it including path. Used only to build fixture Domain fields; unlike
// extractDomainFromURI it does not validate the scheme or stop at the host.
func extractDomainFromURL(serverURL string) string {
	d := serverURL
	if len(d) > 8 && d[:8] == "https://" {
		d = d[8:]
	} else if len(d) > 7 && d[:7] == "http://" {
		d = d[7:]
	}
	return d
}

// CreateTestFollowActivity builds a Follow activity JSON fixture.
func CreateTestFollowActivity(actorURI, objectURI string) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Follow",
		"actor":    actorURI,
		"object":   objectURI,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestAcceptActivity builds an Accept activity JSON fixture.
func CreateTestAcceptActivity(actorURI, followActivityURI string) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Accept",
		"actor":    actorURI,
		"object":   followActivityURI,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestCreateActivity builds a Create activity wrapping a Note fixture.
func CreateTestCreateActivity(actorURI, content string) string {
	noteID := actorURI + "/notes/" + uuid.New().String()
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Create",
		"actor":    actorURI,
		"object": map[string]any{
			"id":           noteID,
			"type":         "Note",
			"content":      content,
			"published":    time.Now().UTC().Format(time.RFC3339),
			"attributedTo": actorURI,
			"to":           []string{"https://www.w3.org/ns/activitystreams#Public"},
		},
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestUndoActivity wraps an already-built activity in an Undo fixture.
func CreateTestUndoActivity(actorURI string, undoneActivity map[string]any) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Undo",
		"actor":    actorURI,
		"object":   undoneActivity,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestLikeActivity builds a Like activity JSON fixture.
func CreateTestLikeActivity(actorURI, objectURI string) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Like",
		"actor":    actorURI,
		"object":   objectURI,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestDeleteActivity builds a Delete activity JSON fixture.
func CreateTestDeleteActivity(actorURI, objectURI string) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Delete",
		"actor":    actorURI,
		"object":   objectURI,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// CreateTestUpdateActivity builds an Update activity wrapping a modified object fixture.
func CreateTestUpdateActivity(actorURI string, updatedObject map[string]any) string {
	activity := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       actorURI + "/activities/" + uuid.New().String(),
		"type":     "Update",
		"actor":    actorURI,
		"object":   updatedObject,
	}
	b, _ := json.Marshal(activity)
	return string(b)
}

// ValidateActivityJSON checks that a JSON string decodes to an object carrying
// the minimum fields every ActivityPub activity needs.
func ValidateActivityJSON(jsonStr string) (map[string]any, error) {
	var activity map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &activity); err != nil {
		return nil, err
	}
	if _, ok := activity["type"]; !ok {
		return nil, &ValidationError{Field: "type", Message: "missing required field"}
	}
	if _, ok := activity["actor"]; !ok {
		return nil, &ValidationError{Field: "actor", Message: "missing required field"}
	}
	return activity, nil
}

// ValidationError reports a single missing or malformed activity field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// MockHTTPClient is a scripted HTTPClient for exercising outbound fetch/deliver paths.
type MockHTTPClient struct {
	Responses       map[string]*http.Response
	Errors          map[string]error
	Requests        []*http.Request
	DefaultResponse *http.Response
	DefaultError    error
}

// NewMockHTTPClient creates an empty scripted client; defaults to 404 Do() results.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		Responses: make(map[string]*http.Response),
		Errors:    make(map[string]error),
		Requests:  []*http.Request{},
	}
}

// Do implements HTTPClient.
func (c *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.Requests = append(c.Requests, req)

	url := req.URL.String()

	if err, ok := c.Errors[url]; ok {
		return nil, err
	}
	if resp, ok := c.Responses[url]; ok {
		return resp, nil
	}
	if c.DefaultError != nil {
		return nil, c.DefaultError
	}
	if c.DefaultResponse != nil {
		return c.DefaultResponse, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(bytes.NewReader([]byte("not found"))),
	}, nil
}

// SetResponse scripts a raw-body response for a specific request URL.
func (c *MockHTTPClient) SetResponse(url string, statusCode int, body []byte) {
	c.Responses[url] = &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// SetJSONResponse scripts a JSON-encoded response for a specific request URL.
func (c *MockHTTPClient) SetJSONResponse(url string, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.Responses[url] = &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
	return nil
}

// SetError scripts a transport error for a specific request URL.
func (c *MockHTTPClient) SetError(url string, err error) {
	c.Errors[url] = err
}

var _ HTTPClient = (*MockHTTPClient)(nil)

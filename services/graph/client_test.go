package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testClientID = "260800c4-531c-4a89-9e47-1ca18a1de794"

func testClient(serverURL string) *Client {
	c := NewClient("test-tenant", testClientID, "test-secret")
	c.baseURL = serverURL
	c.tokenURL = serverURL + "/token"
	return c
}

func TestSchoolExtensionAttribute(t *testing.T) {
	t.Parallel()

	got := schoolExtensionAttribute(testClientID)
	want := "extension_260800c4531c4a899e471ca18a1de794_school"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAcquireToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("expected path /token, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("expected client_credentials grant, got %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("scope") != graphScope {
			t.Errorf("expected scope %q, got %q", graphScope, r.Form.Get("scope"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3599,
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	token, err := client.AcquireToken(context.Background())
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if token != "test-access-token" {
		t.Fatalf("expected test-access-token, got %q", token)
	}
}

func TestAcquireToken_SurfacesProviderDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.AcquireToken(context.Background())
	if err == nil {
		t.Fatal("expected error for 401 token response")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if !strings.Contains(authErr.Detail, "invalid_client") {
		t.Fatalf("expected provider detail in error, got %q", authErr.Detail)
	}
}

func TestCreateUser(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("expected path /users, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token header, got %q", r.Header.Get("Authorization"))
		}

		json.NewDecoder(r.Body).Decode(&payload)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "U1"})
	}))
	defer server.Close()

	client := testClient(server.URL)
	userID, err := client.CreateUser(context.Background(), "tok", UserProfile{
		FirstName:   "Van A",
		LastName:    "Nguyen",
		DisplayName: "Nguyen Van A",
		Username:    "nva",
		Domain:      "@example.edu.vn",
		Password:    "Temp0rary!",
		School:      "THPT Kon Tum",
		JobTitle:    "Teacher",
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if userID != "U1" {
		t.Fatalf("expected user id U1, got %q", userID)
	}

	if payload["accountEnabled"] != true {
		t.Error("expected accountEnabled true")
	}
	if payload["userPrincipalName"] != "nva@example.edu.vn" {
		t.Errorf("expected derived principal name, got %v", payload["userPrincipalName"])
	}
	if payload["mailNickname"] != "nva" {
		t.Errorf("expected mailNickname nva, got %v", payload["mailNickname"])
	}
	if payload["extension_260800c4531c4a899e471ca18a1de794_school"] != "THPT Kon Tum" {
		t.Error("expected school stored in the extension attribute")
	}

	pwProfile, ok := payload["passwordProfile"].(map[string]any)
	if !ok {
		t.Fatal("expected passwordProfile object")
	}
	if pwProfile["forceChangePasswordNextSignIn"] != true {
		t.Error("expected forced password rotation on first sign-in")
	}
	if pwProfile["password"] != "Temp0rary!" {
		t.Error("expected supplied password in profile")
	}
}

func TestCreateUser_SurfacesGraphMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"Request_BadRequest","message":"userPrincipalName already exists"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.CreateUser(context.Background(), "tok", UserProfile{Username: "nva", Domain: "@x.vn"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if provErr.Detail != "userPrincipalName already exists" {
		t.Fatalf("expected graph message, got %q", provErr.Detail)
	}
	if provErr.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", provErr.Status)
	}
}

func TestCreateUser_FallsBackToRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.CreateUser(context.Background(), "tok", UserProfile{})

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if provErr.Detail != "upstream exploded" {
		t.Fatalf("expected raw body detail, got %q", provErr.Detail)
	}
}

func TestPatchUser_OmitsCredentialFields(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/U1" {
			t.Errorf("expected path /users/U1, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := testClient(server.URL)
	err := client.PatchUser(context.Background(), "tok", "U1", UserProfile{
		DisplayName: "Nguyen Van B",
		School:      "THCS Le Loi",
	})
	if err != nil {
		t.Fatalf("PatchUser failed: %v", err)
	}

	if payload["displayName"] != "Nguyen Van B" {
		t.Errorf("expected displayName patch, got %v", payload["displayName"])
	}
	if _, ok := payload["passwordProfile"]; ok {
		t.Error("patch must not touch the password")
	}
	if _, ok := payload["userPrincipalName"]; ok {
		t.Error("patch must not touch the principal name")
	}
}

func TestListLicenses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/U1/licenseDetails" {
			t.Errorf("expected licenseDetails path, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{{"skuId": "sku-1"}, {"skuId": "sku-2"}},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	skus, err := client.ListLicenses(context.Background(), "tok", "U1")
	if err != nil {
		t.Fatalf("ListLicenses failed: %v", err)
	}
	if len(skus) != 2 || skus[0] != "sku-1" || skus[1] != "sku-2" {
		t.Fatalf("unexpected skus: %v", skus)
	}
}

// assignCall records one assignLicense request body.
type assignCall struct {
	AddLicenses []struct {
		SkuID string `json:"skuId"`
	} `json:"addLicenses"`
	RemoveLicenses []string `json:"removeLicenses"`
}

func TestReplaceLicense_RemovesExistingThenAssigns(t *testing.T) {
	var listCalls int
	var assignCalls []assignCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/U1/licenseDetails":
			listCalls++
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]string{{"skuId": "old-sku"}},
			})
		case "/users/U1/assignLicense":
			var call assignCall
			json.NewDecoder(r.Body).Decode(&call)
			assignCalls = append(assignCalls, call)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	if err := client.ReplaceLicense(context.Background(), "tok", "U1", "new-sku"); err != nil {
		t.Fatalf("ReplaceLicense failed: %v", err)
	}

	if listCalls != 1 {
		t.Fatalf("expected exactly one licenseDetails read, got %d", listCalls)
	}
	if len(assignCalls) != 2 {
		t.Fatalf("expected remove then assign, got %d assignLicense calls", len(assignCalls))
	}

	remove := assignCalls[0]
	if len(remove.AddLicenses) != 0 || len(remove.RemoveLicenses) != 1 || remove.RemoveLicenses[0] != "old-sku" {
		t.Fatalf("unexpected remove call: %+v", remove)
	}

	add := assignCalls[1]
	if len(add.RemoveLicenses) != 0 || len(add.AddLicenses) != 1 || add.AddLicenses[0].SkuID != "new-sku" {
		t.Fatalf("unexpected add call: %+v", add)
	}
}

func TestReplaceLicense_SkipsRemoveWhenNoneAssigned(t *testing.T) {
	var assignCalls []assignCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/U1/licenseDetails":
			json.NewEncoder(w).Encode(map[string]any{"value": []map[string]string{}})
		case "/users/U1/assignLicense":
			var call assignCall
			json.NewDecoder(r.Body).Decode(&call)
			assignCalls = append(assignCalls, call)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	if err := client.ReplaceLicense(context.Background(), "tok", "U1", "new-sku"); err != nil {
		t.Fatalf("ReplaceLicense failed: %v", err)
	}

	if len(assignCalls) != 1 {
		t.Fatalf("expected a single assign call, got %d", len(assignCalls))
	}
	if len(assignCalls[0].RemoveLicenses) != 0 {
		t.Fatal("expected no remove call when nothing is assigned")
	}
}

func TestGeneratePassword(t *testing.T) {
	t.Parallel()

	pw, err := GeneratePassword()
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	if len(pw) != 16 {
		t.Fatalf("expected 16-character password, got %d", len(pw))
	}
}

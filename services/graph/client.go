package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-password/password"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphAPIBaseURL = "https://graph.microsoft.com/v1.0"
	loginBaseURL    = "https://login.microsoftonline.com"
	graphScope      = "https://graph.microsoft.com/.default"

	requestTimeout = 30 * time.Second
)

// AuthError reports a failed token acquisition against the login endpoint.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return "acquire token: " + e.Detail
}

// ProviderError reports a failed directory call beyond token acquisition.
// Detail carries the directory's own error message when one was decodable.
type ProviderError struct {
	Op     string
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// UserProfile carries the directory attributes of a teacher account.
// Password and the principal-name parts are only used on creation.
type UserProfile struct {
	FirstName   string
	LastName    string
	DisplayName string
	Username    string
	Domain      string
	Password    string
	School      string
	JobTitle    string
	Department  string
	City        string
	State       string
	PostalCode  string
	Country     string
}

// PrincipalName derives the directory sign-in name from username and domain.
func (p *UserProfile) PrincipalName() string {
	return p.Username + p.Domain
}

// Client talks to the directory service. Every call takes an access token
// obtained from AcquireToken; the client holds no token state of its own.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	tokenURL     string
	baseURL      string
	schoolAttr   string
}

// NewClient creates a directory client for the given tenant and application
// credentials.
func NewClient(tenantID, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: requestTimeout},
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, tenantID),
		baseURL:      graphAPIBaseURL,
		schoolAttr:   schoolExtensionAttribute(clientID),
	}
}

// schoolExtensionAttribute derives the name of the directory schema extension
// holding the school, which embeds the application id without dashes.
func schoolExtensionAttribute(clientID string) string {
	return "extension_" + strings.ReplaceAll(clientID, "-", "") + "_school"
}

// AcquireToken performs a client-credentials exchange and returns the access
// token. A fresh token is fetched on every call; workflows acquire one token
// and reuse it for the calls they issue.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	cfg := clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.tokenURL,
		Scopes:       []string{graphScope},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && len(retrieveErr.Body) > 0 {
			return "", &AuthError{Detail: strings.TrimSpace(string(retrieveErr.Body))}
		}
		return "", &AuthError{Detail: err.Error()}
	}

	return token.AccessToken, nil
}

// CreateUser submits a new directory user and returns the id the directory
// assigned. The account is enabled with a forced password change on first
// sign-in.
func (c *Client) CreateUser(ctx context.Context, token string, profile UserProfile) (string, error) {
	payload := map[string]any{
		"accountEnabled":    true,
		"givenName":         profile.FirstName,
		"surname":           profile.LastName,
		"displayName":       profile.DisplayName,
		"mailNickname":      profile.Username,
		"userPrincipalName": profile.PrincipalName(),
		"passwordProfile": map[string]any{
			"forceChangePasswordNextSignIn": true,
			"password":                      profile.Password,
		},
		"jobTitle":   profile.JobTitle,
		"department": profile.Department,
		"city":       profile.City,
		"state":      profile.State,
		"postalCode": profile.PostalCode,
		"country":    profile.Country,
		c.schoolAttr: profile.School,
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/users", token, payload, &created, "create user"); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &ProviderError{Op: "create user", Detail: "directory response missing user id"}
	}

	return created.ID, nil
}

// PatchUser updates the mutable attributes of an existing user. Password and
// principal name are never patched.
func (c *Client) PatchUser(ctx context.Context, token, userID string, profile UserProfile) error {
	payload := map[string]any{
		"givenName":   profile.FirstName,
		"surname":     profile.LastName,
		"displayName": profile.DisplayName,
		"jobTitle":    profile.JobTitle,
		"department":  profile.Department,
		"city":        profile.City,
		"state":       profile.State,
		"postalCode":  profile.PostalCode,
		"country":     profile.Country,
		c.schoolAttr:  profile.School,
	}

	return c.doJSON(ctx, http.MethodPatch, c.baseURL+"/users/"+userID, token, payload, nil, "patch user")
}

// AssignLicense adds a single license SKU to the user, removing none.
func (c *Client) AssignLicense(ctx context.Context, token, userID, skuID string) error {
	payload := map[string]any{
		"addLicenses": []map[string]any{
			{"disabledPlans": []string{}, "skuId": skuID},
		},
		"removeLicenses": []string{},
	}

	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/users/"+userID+"/assignLicense", token, payload, nil, "assign license")
}

// RemoveLicenses strips the given SKUs from the user, adding none.
func (c *Client) RemoveLicenses(ctx context.Context, token, userID string, skuIDs []string) error {
	payload := map[string]any{
		"addLicenses":    []map[string]any{},
		"removeLicenses": skuIDs,
	}

	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/users/"+userID+"/assignLicense", token, payload, nil, "remove licenses")
}

// ListLicenses returns the SKU ids currently assigned to the user.
func (c *Client) ListLicenses(ctx context.Context, token, userID string) ([]string, error) {
	var details struct {
		Value []struct {
			SkuID string `json:"skuId"`
		} `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/users/"+userID+"/licenseDetails", token, nil, &details, "list licenses"); err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(details.Value))
	for _, d := range details.Value {
		skus = append(skus, d.SkuID)
	}
	return skus, nil
}

// ReplaceLicense swaps the user's licenses for the single given SKU: current
// SKUs are read and removed (skipped when there are none), then the new SKU is
// assigned. The directory only supports additive and subtractive license
// calls, hence the two phases.
func (c *Client) ReplaceLicense(ctx context.Context, token, userID, skuID string) error {
	current, err := c.ListLicenses(ctx, token, userID)
	if err != nil {
		return err
	}

	if len(current) > 0 {
		if err := c.RemoveLicenses(ctx, token, userID, current); err != nil {
			return err
		}
	}

	return c.AssignLicense(ctx, token, userID, skuID)
}

// GeneratePassword produces a temporary password for requests that omit one.
// The forced change on first sign-in applies either way.
func GeneratePassword() (string, error) {
	pw, err := password.Generate(16, 4, 2, false, false)
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return pw, nil
}

// doJSON issues one directory request and decodes the response into out when
// non-nil. Non-2xx responses become a ProviderError carrying the directory's
// message.
func (c *Client) doJSON(ctx context.Context, method, url, token string, payload, out any, op string) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.providerError(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}

	return nil
}

// providerError extracts the directory's error message from a failed response.
func (c *Client) providerError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var graphErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	detail := ""
	if err := json.Unmarshal(raw, &graphErr); err == nil {
		detail = graphErr.Error.Message
	}
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}
	if detail == "" {
		detail = resp.Status
	}

	return &ProviderError{Op: op, Status: resp.StatusCode, Detail: detail}
}

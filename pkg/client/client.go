package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/ghmirror/pkg/types"
)

// requestTimeout bounds every mirror request
const requestTimeout = 10 * time.Second

// Client is a typed HTTP client for the mirror's read API. Lookup
// methods return found=false for documents the mirror does not hold;
// errors are reserved for transport and protocol failures.
type Client struct {
	baseURL      string
	presharedKey string
	httpClient   *http.Client
}

// NewClient creates a mirror client. The URL must carry an http or
// https scheme; trailing slashes are stripped.
func NewClient(baseURL, presharedKey string) (*Client, error) {
	return newClient(baseURL, presharedKey, nil)
}

// NewInsecureClient creates a mirror client that skips TLS certificate
// verification, for mirrors behind self-signed certificates
func NewInsecureClient(baseURL, presharedKey string) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return newClient(baseURL, presharedKey, transport)
}

func newClient(baseURL, presharedKey string, transport http.RoundTripper) (*Client, error) {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("mirror URL must begin with http:// or https://")
	}

	httpClient := &http.Client{}
	if transport != nil {
		httpClient.Transport = transport
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		presharedKey: presharedKey,
		httpClient:   httpClient,
	}, nil
}

// Close releases idle connections held by the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetOrganization fetches one mirrored organization
func (c *Client) GetOrganization(name string) (*types.Organization, bool, error) {
	var org types.Organization
	found, err := c.get("/organization/"+url.PathEscape(name), &org)
	if err != nil || !found {
		return nil, false, err
	}
	return &org, true, nil
}

// GetUserRepositories fetches a user account's repository list
func (c *Client) GetUserRepositories(name string) (*types.UserRepositories, bool, error) {
	var userRepos types.UserRepositories
	found, err := c.get("/user-repositories/"+url.PathEscape(name), &userRepos)
	if err != nil || !found {
		return nil, false, err
	}
	return &userRepos, true, nil
}

// GetRepository fetches one mirrored repository
func (c *Client) GetRepository(owner types.Owner, repoName string) (*types.Repository, bool, error) {
	var repo types.Repository
	found, err := c.get(repositoryPath(owner, repoName), &repo)
	if err != nil || !found {
		return nil, false, err
	}
	return &repo, true, nil
}

// GetIssue fetches one mirrored issue
func (c *Client) GetIssue(owner types.Owner, repoName string, number int) (*types.Issue, bool, error) {
	var issue types.Issue
	path := fmt.Sprintf("/issue/%s/%s/%s/%d", ownerSegment(owner), url.PathEscape(owner.Name), url.PathEscape(repoName), number)
	found, err := c.get(path, &issue)
	if err != nil || !found {
		return nil, false, err
	}
	return &issue, true, nil
}

// GetBulkIssuesRange fetches the issues in the inclusive number range.
// Absent issues are skipped by the mirror, never reported.
func (c *Client) GetBulkIssuesRange(owner types.Owner, repoName string, start, end int) (*types.BulkIssues, error) {
	var bulk types.BulkIssues
	path := fmt.Sprintf("%s?start=%d&end=%d", bulkIssuePath(owner, repoName), start, end)
	found, err := c.get(path, &bulk)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("mirror does not serve bulk issues")
	}
	return &bulk, nil
}

// GetBulkIssuesList fetches the named issues. Numbers are requested in
// ascending order, so the response follows that order too.
func (c *Client) GetBulkIssuesList(owner types.Owner, repoName string, numbers []int) (*types.BulkIssues, error) {
	sorted := make([]int, len(numbers))
	copy(sorted, numbers)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for _, number := range sorted {
		parts = append(parts, strconv.Itoa(number))
	}

	var bulk types.BulkIssues
	path := bulkIssuePath(owner, repoName) + "?issueList=" + strings.Join(parts, ",")
	found, err := c.get(path, &bulk)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("mirror does not serve bulk issues")
	}
	return &bulk, nil
}

// GetUser fetches one mirrored user account
func (c *Client) GetUser(login string) (*types.User, bool, error) {
	var user types.User
	found, err := c.get("/user/"+url.PathEscape(login), &user)
	if err != nil || !found {
		return nil, false, err
	}
	return &user, true, nil
}

// ResourceChangeEvents fetches the change log entries with a timestamp
// at or after since (epoch milliseconds), oldest first
func (c *Client) ResourceChangeEvents(since int64) ([]types.ResourceChangeEvent, error) {
	var events []types.ResourceChangeEvent
	found, err := c.get(fmt.Sprintf("/resourceChangeEvent?since=%d", since), &events)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("mirror does not serve change events")
	}
	return events, nil
}

// TriggerFullScan asks the mirror to schedule a full scan
func (c *Client) TriggerFullScan() error {
	return c.post("/fullScan")
}

// get performs an authenticated GET and decodes the JSON response.
// A 404 answers found=false without error.
func (c *Client) get(path string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.presharedKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to parse mirror response: %w", err)
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError(path, resp)
	}
}

// post performs an authenticated POST with an empty body
func (c *Client) post(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.presharedKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return responseError(path, resp)
	}
	return nil
}

func responseError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("mirror request %s failed: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// ownerSegment maps an owner to its path segment, "org" or "user"
func ownerSegment(owner types.Owner) string {
	return string(owner.Type)
}

func repositoryPath(owner types.Owner, repoName string) string {
	return "/repository/" + ownerSegment(owner) + "/" + url.PathEscape(owner.Name) + "/" + url.PathEscape(repoName)
}

func bulkIssuePath(owner types.Owner, repoName string) string {
	return "/bulk/issue/" + ownerSegment(owner) + "/" + url.PathEscape(owner.Name) + "/" + url.PathEscape(repoName)
}

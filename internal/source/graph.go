package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
	"github.com/driveback/driveback/internal/version"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphSource lists and reads OneDrive/SharePoint content through the
// Microsoft Graph API. The drive is resolved once per process and cached.
type GraphSource struct {
	cfg     *config.Source
	tokens  TokenProvider
	client  *req.Client
	streams *req.Client // separate client with response auto-read disabled
	driveID string
}

func NewGraphSource(cfg *config.Source, tokens TokenProvider) *GraphSource {
	userAgent := fmt.Sprintf("%s/%s", version.AppName, version.Version)

	client := req.C().
		SetBaseURL(graphBaseURL).
		SetUserAgent(userAgent).
		SetTimeout(2 * time.Minute)

	streams := req.C().
		SetBaseURL(graphBaseURL).
		SetUserAgent(userAgent).
		DisableAutoReadResponse()

	return &GraphSource{
		cfg:     cfg,
		tokens:  tokens,
		client:  client,
		streams: streams,
	}
}

func (g *GraphSource) Name() string {
	return g.cfg.Name
}

// graph wire types

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

type driveItemPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type drive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type drivePage struct {
	Value []drive `json:"value"`
}

type site struct {
	ID string `json:"id"`
}

// List walks the whole drive tree and returns every file with its stable
// item id as identity and as locator.
func (g *GraphSource) List(ctx context.Context) ([]backup.RemoteFile, error) {
	driveID, err := g.resolveDrive(ctx)
	if err != nil {
		return nil, err
	}

	var files []backup.RemoteFile
	// iterative walk; each entry is (children endpoint, folder path)
	type frame struct {
		endpoint string
		dir      string
	}
	stack := []frame{{endpoint: fmt.Sprintf("/drives/%s/root/children", driveID)}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		endpoint := top.endpoint
		for endpoint != "" {
			var page driveItemPage
			if err := g.getJSON(ctx, endpoint, &page); err != nil {
				return nil, fmt.Errorf("list %s: %w", g.cfg.Name, err)
			}

			for _, item := range page.Value {
				itemPath := path.Join(top.dir, item.Name)
				if item.Folder != nil {
					stack = append(stack, frame{
						endpoint: fmt.Sprintf("/drives/%s/items/%s/children", driveID, item.ID),
						dir:      itemPath,
					})
					continue
				}
				files = append(files, backup.RemoteFile{
					Identity:   item.ID,
					Path:       itemPath,
					Size:       item.Size,
					ModifiedAt: item.LastModifiedDateTime,
					Locator:    item.ID,
				})
			}
			endpoint = page.NextLink
		}
	}

	return files, nil
}

// Open streams the content of one drive item. Graph answers the content
// endpoint with a redirect to a pre-authenticated download URL, which the
// client follows transparently.
func (g *GraphSource) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	driveID, err := g.resolveDrive(ctx)
	if err != nil {
		return nil, err
	}
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := g.streams.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		Get(fmt.Sprintf("/drives/%s/items/%s/content", driveID, locator))
	if err != nil {
		return nil, fmt.Errorf("%w: open item %s: %v", backup.ErrTransient, locator, err)
	}
	if resp.IsErrorState() {
		defer resp.Body.Close()
		return nil, statusError(resp.StatusCode, fmt.Sprintf("open item %s", locator))
	}
	return resp.Body, nil
}

// Check resolves the configured drive, verifying both reachability and the
// supplied credential.
func (g *GraphSource) Check(ctx context.Context) error {
	_, err := g.resolveDrive(ctx)
	return err
}

func (g *GraphSource) resolveDrive(ctx context.Context) (string, error) {
	if g.driveID != "" {
		return g.driveID, nil
	}

	var id string
	var err error
	switch g.cfg.Type {
	case config.SourceOneDrivePersonal, config.SourceOneDriveBusiness:
		id, err = g.resolveUserDrive(ctx)
	case config.SourceSharePoint:
		id, err = g.resolveLibraryDrive(ctx)
	default:
		return "", fmt.Errorf("unsupported source type %q", g.cfg.Type)
	}
	if err != nil {
		return "", err
	}

	g.driveID = id
	return id, nil
}

// resolveUserDrive resolves the default drive for the configured user; the
// special user "me" addresses whichever principal the token belongs to.
func (g *GraphSource) resolveUserDrive(ctx context.Context) (string, error) {
	endpoint := "/me/drive"
	if !strings.EqualFold(g.cfg.User, "me") {
		endpoint = fmt.Sprintf("/users/%s/drive", url.PathEscape(g.cfg.User))
	}

	var d drive
	if err := g.getJSON(ctx, endpoint, &d); err != nil {
		return "", fmt.Errorf("resolve drive for %s: %w", g.cfg.User, err)
	}
	return d.ID, nil
}

// resolveLibraryDrive looks up the SharePoint site by hostname:path, then
// matches the configured document library among the site's drives.
func (g *GraphSource) resolveLibraryDrive(ctx context.Context) (string, error) {
	siteURL, err := url.Parse(g.cfg.SiteURL)
	if err != nil {
		return "", fmt.Errorf("parse site_url %q: %w", g.cfg.SiteURL, err)
	}

	var st site
	endpoint := fmt.Sprintf("/sites/%s:%s", siteURL.Host, strings.TrimSuffix(siteURL.Path, "/"))
	if err := g.getJSON(ctx, endpoint, &st); err != nil {
		return "", fmt.Errorf("resolve site %s: %w", g.cfg.SiteURL, err)
	}

	var drives drivePage
	if err := g.getJSON(ctx, fmt.Sprintf("/sites/%s/drives", st.ID), &drives); err != nil {
		return "", fmt.Errorf("list drives for site %s: %w", g.cfg.SiteURL, err)
	}

	for _, d := range drives.Value {
		if strings.EqualFold(d.Name, g.cfg.Library) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%w: library %q not found on site %s", backup.ErrNotFound, g.cfg.Library, g.cfg.SiteURL)
}

func (g *GraphSource) getJSON(ctx context.Context, endpoint string, out any) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetSuccessResult(out).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", backup.ErrTransient, err)
	}
	if resp.IsErrorState() {
		return statusError(resp.StatusCode, endpoint)
	}
	return nil
}

// statusError maps Graph HTTP statuses onto the engine's error taxonomy.
func statusError(status int, what string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %s (http %d)", backup.ErrAuthFailure, what, status)
	case status == 404:
		return fmt.Errorf("%w: %s", backup.ErrNotFound, what)
	case status == 429:
		return fmt.Errorf("%w: %s throttled", backup.ErrQuotaExceeded, what)
	case status >= 500:
		return fmt.Errorf("%w: %s (http %d)", backup.ErrTransient, what, status)
	default:
		return fmt.Errorf("%s failed with http %d", what, status)
	}
}

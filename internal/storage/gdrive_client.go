package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Archive is one approved content package
type Archive struct {
	Name        string
	Document    interface{}
	Spreadsheet []byte
}

// DriveClient archives approved content to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
	mu         sync.Mutex
}

// NewDriveClient creates a new Google Drive client. The OAuth token must
// already exist in tokenFile; the server never prompts for one.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s: %w", tokenFile, err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	return &DriveClient{
		service:    srv,
		folderName: folderName,
	}, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ensureFolder finds or creates the root folder
func (dc *DriveClient) ensureFolder(ctx context.Context) (string, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.folderID != "" {
		return dc.folderID, nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", dc.folderName, folderMimeType)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder: %w", err)
	}

	if len(r.Files) > 0 {
		dc.folderID = r.Files[0].Id
		return dc.folderID, nil
	}

	folder := &drive.File{
		Name:     dc.folderName,
		MimeType: folderMimeType,
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder: %w", err)
	}

	dc.folderID = file.Id
	return dc.folderID, nil
}

// Upload stores the archive's JSON document and spreadsheet in a dated
// folder (Content/2025/01/23/) and returns a link to the JSON file
func (dc *DriveClient) Upload(ctx context.Context, archive *Archive) (string, error) {
	now := time.Now()
	folderID, err := dc.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	baseFilename := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(archive.Name))

	if len(archive.Spreadsheet) > 0 {
		xlsxFile := &drive.File{
			Name:    baseFilename + ".xlsx",
			Parents: []string{folderID},
		}
		if _, err := dc.service.Files.Create(xlsxFile).Media(bytes.NewReader(archive.Spreadsheet)).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("failed to upload spreadsheet: %w", err)
		}
	}

	docJSON, err := json.MarshalIndent(archive.Document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive document: %w", err)
	}

	jsonFile := &drive.File{
		Name:    baseFilename + ".json",
		Parents: []string{folderID},
	}

	created, err := dc.service.Files.Create(jsonFile).Media(bytes.NewReader(docJSON)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload archive document: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	rootID, err := dc.ensureFolder(ctx)
	if err != nil {
		return "", err
	}

	yearID, err := dc.findOrCreateFolder(ctx, fmt.Sprintf("%d", t.Year()), rootID)
	if err != nil {
		return "", err
	}

	monthID, err := dc.findOrCreateFolder(ctx, fmt.Sprintf("%02d", t.Month()), yearID)
	if err != nil {
		return "", err
	}

	return dc.findOrCreateFolder(ctx, fmt.Sprintf("%02d", t.Day()), monthID)
}

// findOrCreateFolder finds or creates a folder with the given parent
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		name, parentID, folderMimeType)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	return file.Id, nil
}

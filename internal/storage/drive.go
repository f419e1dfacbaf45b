package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Drive uploads into Google Drive using a service account. Each event gets a
// folder under the root folder, with one subfolder per table.
type Drive struct {
	service *drive.Service
	root    string
	mu      sync.Mutex
	folders map[string]string // "<parent>/<name>" -> folder id
}

func NewDrive(ctx context.Context, credentialsFile, rootFolderId string) (*Drive, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Drive{
		service: service,
		root:    rootFolderId,
		folders: make(map[string]string),
	}, nil
}

func (d *Drive) Put(ctx context.Context, o Object) (string, error) {
	eventFolder, err := d.folder(ctx, d.root, SafeName(o.EventCode))
	if err != nil {
		return "", err
	}
	tableFolderId, err := d.folder(ctx, eventFolder, tableFolder(o.TableNumber))
	if err != nil {
		return "", err
	}

	file := &drive.File{
		Name:     objectName(o),
		Parents:  []string{tableFolderId},
		MimeType: o.ContentType,
	}
	created, err := d.service.Files.Create(file).
		Media(o.Body, googleapi.ContentType(o.ContentType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload: %w", err)
	}
	return created.Id, nil
}

// folder finds or creates a child folder, caching ids for the process lifetime.
func (d *Drive) folder(ctx context.Context, parent, name string) (string, error) {
	key := parent + "/" + name
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.folders[key]; ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parent), folderMimeType)
	list, err := d.service.Files.List().
		Q(q).
		Fields("files(id)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive folder lookup: %w", err)
	}
	if len(list.Files) > 0 {
		d.folders[key] = list.Files[0].Id
		return list.Files[0].Id, nil
	}

	created, err := d.service.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{parent},
		MimeType: folderMimeType,
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive folder create: %w", err)
	}
	d.folders[key] = created.Id
	return created.Id, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}

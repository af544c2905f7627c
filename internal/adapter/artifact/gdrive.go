package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "tenantvault/internal/config"
)

// GDriveStore keeps artifacts as files in a single Drive folder. The location
// string is the Drive file id, which stays valid even if the file is renamed.
type GDriveStore struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(cfg *appconfig.GDriveConfig) (*GDriveStore, error) {
	ctx := context.Background()

	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStore{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	fileMetadata := &drive.File{
		Name:    key,
		Parents: []string{g.folderID},
	}

	created, err := g.service.Files.Create(fileMetadata).
		Media(bytes.NewReader(data)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return created.Id, nil
}

func (g *GDriveStore) Get(ctx context.Context, location string) ([]byte, error) {
	resp, err := g.service.Files.Get(location).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download from gdrive: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gdrive file body: %w", err)
	}

	return data, nil
}

func (g *GDriveStore) Delete(ctx context.Context, location string) error {
	if err := g.service.Files.Delete(location).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete gdrive file: %w", err)
	}
	return nil
}

func (g *GDriveStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", g.folderID)

	var names []string
	pageToken := ""
	for {
		call := g.service.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list gdrive files: %w", err)
		}

		for _, file := range fileList.Files {
			names = append(names, file.Name)
		}

		if fileList.NextPageToken == "" {
			break
		}
		pageToken = fileList.NextPageToken
	}

	return names, nil
}

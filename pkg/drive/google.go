package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/resilience"
)

const listFields = "nextPageToken, files(id, name, mimeType, createdTime)"

// Options configures the Google Drive client.
type Options struct {
	CredentialsFile string
	RatePerSec      float64 // 0 disables rate limiting
	Retry           resilience.Policy

	// Endpoint and HTTPClient override transport details, mostly for tests.
	Endpoint   string
	HTTPClient *http.Client
}

type googleClient struct {
	svc     *gdrive.Service
	limiter *rate.Limiter
	retry   resilience.Policy
}

// Connect builds a Drive client and verifies that the credentials can
// actually reach the API. On failure it returns a nil Client and the reason;
// callers never hold a client that was not proven usable.
func Connect(ctx context.Context, opts Options) (Client, error) {
	svcOpts := []option.ClientOption{option.WithScopes(gdrive.DriveScope)}
	if opts.HTTPClient != nil {
		svcOpts = append(svcOpts, option.WithHTTPClient(opts.HTTPClient))
	} else if opts.CredentialsFile != "" {
		svcOpts = append(svcOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gdrive.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "drive: create service")
	}

	c := newGoogleClient(svc, opts)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if _, err := svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return nil, eris.Wrap(err, "drive: capability check")
	}
	return c, nil
}

func newGoogleClient(svc *gdrive.Service, opts Options) *googleClient {
	c := &googleClient{svc: svc, retry: opts.Retry}
	if c.retry.MaxAttempts == 0 {
		c.retry = resilience.DefaultPolicy()
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return c
}

func (c *googleClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "drive: rate limit wait")
}

func (c *googleClient) policy(op string) resilience.Policy {
	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetry("drive." + op)
	}
	return p
}

func (c *googleClient) List(ctx context.Context, folderID string) ([]model.Artifact, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", strings.ReplaceAll(folderID, "'", `\'`))

	return resilience.Do(ctx, c.policy("list"), func(ctx context.Context) ([]model.Artifact, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		out := []model.Artifact{}
		err := c.svc.Files.List().
			Q(q).
			Fields(listFields).
			PageSize(1000).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Pages(ctx, func(fl *gdrive.FileList) error {
				for _, f := range fl.Files {
					out = append(out, toArtifact(f))
				}
				return nil
			})
		if err != nil {
			return nil, eris.Wrapf(err, "drive: list folder %s", folderID)
		}
		return out, nil
	})
}

func (c *googleClient) Download(ctx context.Context, fileID, destDir string) (string, error) {
	return resilience.Do(ctx, c.policy("download"), func(ctx context.Context) (string, error) {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		meta, err := c.svc.Files.Get(fileID).Fields("name").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return "", eris.Wrapf(err, "drive: get metadata %s", fileID)
		}
		resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return "", eris.Wrapf(err, "drive: download %s", fileID)
		}
		defer resp.Body.Close() //nolint:errcheck

		dest := filepath.Join(destDir, filepath.Base(meta.Name))
		if err := writeFile(dest, resp.Body); err != nil {
			return "", err
		}
		return dest, nil
	})
}

func (c *googleClient) Upload(ctx context.Context, localPath, folderID, name string) (string, error) {
	return resilience.Do(ctx, c.policy("upload"), func(ctx context.Context) (string, error) {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		f, err := os.Open(localPath)
		if err != nil {
			return "", eris.Wrapf(err, "drive: open %s", localPath)
		}
		defer f.Close() //nolint:errcheck

		created, err := c.svc.Files.Create(&gdrive.File{
			Name:     name,
			Parents:  []string{folderID},
			MimeType: model.MimeCSV,
		}).Media(f).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return "", eris.Wrapf(err, "drive: upload %s to %s", name, folderID)
		}
		return created.Id, nil
	})
}

func (c *googleClient) Overwrite(ctx context.Context, fileID, localPath string) error {
	return resilience.Run(ctx, c.policy("overwrite"), func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		f, err := os.Open(localPath)
		if err != nil {
			return eris.Wrapf(err, "drive: open %s", localPath)
		}
		defer f.Close() //nolint:errcheck

		_, err = c.svc.Files.Update(fileID, &gdrive.File{}).Media(f).SupportsAllDrives(true).Context(ctx).Do()
		return eris.Wrapf(err, "drive: overwrite %s", fileID)
	})
}

func (c *googleClient) Export(ctx context.Context, fileID, mimeType, destPath string) (string, error) {
	return resilience.Do(ctx, c.policy("export"), func(ctx context.Context) (string, error) {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		resp, err := c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
		if err != nil {
			return "", eris.Wrapf(err, "drive: export %s as %s", fileID, mimeType)
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := writeFile(destPath, resp.Body); err != nil {
			return "", err
		}
		return destPath, nil
	})
}

func toArtifact(f *gdrive.File) model.Artifact {
	a := model.Artifact{
		Name:       f.Name,
		ID:         f.Id,
		MimeType:   f.MimeType,
		CreatedRaw: f.CreatedTime,
	}
	if t, err := fetcher.ParseTime(f.CreatedTime, nil); err == nil {
		a.CreatedAt = t
	} else {
		zap.L().Debug("drive: unparsable createdTime",
			zap.String("file", f.Name),
			zap.String("created_time", f.CreatedTime),
		)
	}
	return a
}

func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "drive: create dir for %s", dest)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "drive: create %s", tmp)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()    //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return eris.Wrapf(err, "drive: write %s", dest)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "drive: close %s", tmp)
	}
	return eris.Wrapf(os.Rename(tmp, dest), "drive: rename %s", tmp)
}

package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Bulk filing mirrors accept anonymous logins but ask for a contact
// mailbox as the password.
const (
	defaultFTPUser     = "anonymous"
	defaultFTPPassword = "leadgen@benefitscout.io"
)

// FTPOptions configures the FTP fetcher. Empty credentials fall back to
// anonymous login; credentials embedded in the URL win over both.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTPFetcher downloads filing archives from FTP mirrors.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a fetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = defaultFTPUser
	}
	if opts.Password == "" {
		opts.Password = defaultFTPPassword
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is one parsed ftp:// URL. User and Password are empty unless
// the URL carried userinfo.
type ftpTarget struct {
	Host     string
	Path     string
	User     string
	Password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" {
		return ftpTarget{}, eris.New("fetcher: empty path in ftp url")
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	target := ftpTarget{Host: host, Path: u.Path}
	if u.User != nil {
		target.User = u.User.Username()
		target.Password, _ = u.User.Password()
	}
	return target, nil
}

func (f *FTPFetcher) credentials(target ftpTarget) (string, string) {
	if target.User != "" {
		return target.User, target.Password
	}
	return f.opts.User, f.opts.Password
}

func (f *FTPFetcher) connect(ctx context.Context, target ftpTarget) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(target.Host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp dial %s", target.Host)
	}
	user, pass := f.credentials(target)
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp login %s", user)
	}
	return conn, nil
}

// ftpConnReader ties the FTP data stream to its control connection so a
// single Close releases both.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

// Download retrieves the file behind an ftp:// URL. The caller must close the
// returned ReadCloser to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", target.Host), zap.String("path", target.Path))

	conn, err := f.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(target.Path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", target.Path)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// DownloadIfNewer downloads the FTP URL to a local file unless the local
// copy already matches the remote size and is at least as recent. Yearly
// filing archives only ever grow or get republished, so size plus MDTM is
// enough to tell a stale mirror copy from a fresh one. Returns bytes
// written and whether a download happened.
func (f *FTPFetcher) DownloadIfNewer(ctx context.Context, ftpURL string, path string) (int64, bool, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return 0, false, err
	}

	conn, err := f.connect(ctx, target)
	if err != nil {
		return 0, false, err
	}

	if st, statErr := os.Stat(path); statErr == nil {
		// Not every mirror implements SIZE or MDTM; any failure here
		// just means we download.
		if size, sizeErr := conn.FileSize(target.Path); sizeErr == nil && size == st.Size() {
			if mtime, timeErr := conn.GetTime(target.Path); timeErr == nil && !mtime.After(st.ModTime()) {
				_ = conn.Quit()
				return 0, false, nil
			}
		}
	}

	resp, err := conn.Retr(target.Path)
	if err != nil {
		_ = conn.Quit()
		return 0, false, eris.Wrapf(err, "fetcher: ftp retrieve %s", target.Path)
	}
	rc := &ftpConnReader{resp: resp, conn: conn}
	defer rc.Close() //nolint:errcheck

	n, err := stageToFile(path, rc)
	return n, err == nil, err
}

// DownloadToFile downloads the FTP URL to a local file. Returns bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	return stageToFile(path, rc)
}

// stageToFile writes through a temp file and rename so an interrupted
// transfer never leaves a partial archive behind.
func stageToFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ftp-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: move file into place")
	}
	return n, nil
}

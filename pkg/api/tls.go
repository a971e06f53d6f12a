package api

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/rangelabs/rangecloud/internal/logger"
)

// CertReloader serves the server certificate and follows renewals on
// disk: when the certificate or key file changes, the new pair is
// loaded and handed to subsequent handshakes. A failed reload keeps the
// previous certificate.
type CertReloader struct {
	certFile string
	keyFile  string
	password string

	cert    atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCertReloader loads the initial pair and starts watching both
// files' directories.
func NewCertReloader(certFile, keyFile, password string) (*CertReloader, error) {
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		password: password,
		done:     make(chan struct{}),
	}
	cert, err := r.load()
	if err != nil {
		return nil, err
	}
	r.cert.Store(cert)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate watcher: %w", err)
	}
	r.watcher = watcher

	// Watch the parent directories: renewals typically replace the
	// files by rename, which drops a watch on the file itself.
	dirs := map[string]bool{
		filepath.Dir(certFile): true,
		filepath.Dir(keyFile):  true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch certificate directory %q: %w", dir, err)
		}
	}

	go r.watch()
	return r, nil
}

// GetCertificate is plugged into tls.Config.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.cert.Load(), nil
}

// Close stops the watcher.
func (r *CertReloader) Close() {
	close(r.done)
	if r.watcher != nil {
		r.watcher.Close()
	}
}

func (r *CertReloader) watch() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Name != r.certFile && event.Name != r.keyFile {
				continue
			}
			cert, err := r.load()
			if err != nil {
				logger.Error("Certificate reload failed", "path", event.Name, "error", err)
				continue
			}
			r.cert.Store(cert)
			logger.Info("Server certificate reloaded", "path", event.Name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Certificate watcher error", "error", err)
		}
	}
}

func (r *CertReloader) load() (*tls.Certificate, error) {
	certPEM, err := os.ReadFile(r.certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %q: %w", r.certFile, err)
	}
	keyPEM, err := os.ReadFile(r.keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %q: %w", r.keyFile, err)
	}
	if r.password != "" {
		keyPEM, err = decryptKey(keyPEM, r.password)
		if err != nil {
			return nil, err
		}
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server key pair: %w", err)
	}
	return &cert, nil
}

// decryptKey handles legacy password-protected PEM keys.
func decryptKey(keyPEM []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// PublicTLSConfig builds the public listener's TLS policy: server
// authentication only.
func PublicTLSConfig(reloader *CertReloader) *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: reloader.GetCertificate,
	}
}

// PrivateTLSConfig builds the mutual-TLS policy for the private
// listener, pinning client certificates to the configured CA chain.
func PrivateTLSConfig(reloader *CertReloader, caFile string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %q: %w", caFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no usable certificates in %q", caFile)
	}
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: reloader.GetCertificate,
		ClientAuth:     tls.RequireAndVerifyClientCert,
		ClientCAs:      pool,
	}, nil
}

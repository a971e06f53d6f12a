package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/config"
	"github.com/rangelabs/rangecloud/pkg/models"
)

func writeCertPair(t *testing.T, certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "rangecloud-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(certFile), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(keyFile), 0o755))
	require.NoError(t, os.WriteFile(certFile,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile,
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.GetDefaultConfig(t.TempDir())
	// Port zero binds an ephemeral port so tests never collide.
	cfg.PublicHTTPPort = 0
	cfg.PrivateHTTPPort = 0

	writeCertPair(t, cfg.ServerCertFile(), cfg.ServerKeyFile())
	writeCertPair(t, cfg.CACertFile(), filepath.Join(t.TempDir(), "ca.key"))

	app, err := New(cfg, "test")
	require.NoError(t, err)
	return app
}

func TestNewCreatesLayout(t *testing.T) {
	app := newTestApplication(t)

	for _, dir := range []string{
		app.cfg.EtcDir(),
		app.cfg.StoreDir(),
		app.cfg.LogDir(),
		app.cfg.VarDir(),
		app.cfg.ProcessesDir(),
		app.cfg.ReportsDir(),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	// The directory and catalogs seed themselves on first load.
	assert.FileExists(t, app.cfg.UsersFile())
	assert.FileExists(t, app.cfg.ActionsFile())
	assert.FileExists(t, app.cfg.ProcessesFile())
}

func TestRunServesActionsUntilStopped(t *testing.T) {
	app := newTestApplication(t)

	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Run(context.Background())
	}()

	// The dispatcher accepts work as soon as Run has started it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply models.Action
	require.Eventually(t, func() bool {
		var err error
		reply, err = app.dispatcher.Resolve(ctx,
			models.Action{ID: "t-1", Name: models.ActionTest, Data: "ping"}, "root@test")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ping", reply.Data)

	app.requestStop()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStopActionShutsServerDown(t *testing.T) {
	app := newTestApplication(t)

	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Run(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply models.Action
	require.Eventually(t, func() bool {
		var err error
		reply, err = app.dispatcher.Resolve(ctx,
			models.Action{ID: "t-2", Executor: models.RootUserName, Name: models.ActionStop}, "root@test")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Stop server triggered", reply.Data)

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("stop action did not shut the server down")
	}
}

func TestContextCancellationStopsServer(t *testing.T) {
	app := newTestApplication(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop on context cancellation")
	}

	// Shutdown flushes the directory and catalogs.
	assert.FileExists(t, app.cfg.UsersFile())
}

// Copyright 2026 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/coreosfleet/deployer/internal/errs"
)

// copyWithContext runs io.Copy in the background and races it against
// ctx. On cancellation it closes unblock (the sftp.File end of the
// copy) to force the stuck Read/Write to return, then waits for the
// copy goroutine to exit before returning ctx's error — a stalled
// transfer must not be able to outlive its deadline just because the
// network gave io.Copy nothing to time out on.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, unblock io.Closer) (int64, error) {
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := io.Copy(dst, src)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		unblock.Close()
		<-done
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// UploadFile copies local to remotePath on the session's host with the
// given permission bits, cleaning up the partial remote file if the
// transfer fails partway through so a retried deploy does not find a
// half-written script.
func (s *Session) UploadFile(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}
	defer client.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}
	defer local.Close()

	remote, err := client.Create(remotePath)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}

	if _, err := copyWithContext(ctx, remote, local, remote); err != nil {
		remote.Close()
		client.Remove(remotePath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errs.New(errs.SSHTimeout, "transport.UploadFile", ctxErr)
		}
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}
	if err := remote.Close(); err != nil {
		client.Remove(remotePath)
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}

	if err := client.Chmod(remotePath, mode); err != nil {
		client.Remove(remotePath)
		return errs.New(errs.TransferFailed, "transport.UploadFile", err)
	}

	if err := ctx.Err(); err != nil {
		client.Remove(remotePath)
		return errs.New(errs.SSHTimeout, "transport.UploadFile", err)
	}

	return nil
}

// DownloadFile copies remotePath on the session's host to localPath,
// removing any partial local file on failure.
func (s *Session) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.DownloadFile", err)
	}
	defer client.Close()

	remote, err := client.Open(remotePath)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.DownloadFile", err)
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return errs.New(errs.TransferFailed, "transport.DownloadFile", err)
	}

	if _, err := copyWithContext(ctx, local, remote, remote); err != nil {
		local.Close()
		os.Remove(localPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errs.New(errs.SSHTimeout, "transport.DownloadFile", ctxErr)
		}
		return errs.New(errs.TransferFailed, "transport.DownloadFile", err)
	}
	if err := local.Close(); err != nil {
		os.Remove(localPath)
		return errs.New(errs.TransferFailed, "transport.DownloadFile", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(localPath)
		return errs.New(errs.SSHTimeout, "transport.DownloadFile", err)
	}

	return nil
}

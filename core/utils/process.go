package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxStderr 为错误信息保留的子进程 stderr 上限
const maxStderr = 8 << 10

// waitDelay 孤儿子进程占用 I/O 时 Wait 的最长阻塞时间
const waitDelay = 2 * time.Second

// ProcessReader 流式读取子进程 stdout
//
// stdout 到达 EOF 时检查退出状态：非零退出、没有任何输出，或通过 FailInput
// 报告了输入失败，都会把 EOF 换成包装 failure 的错误。
type ProcessReader struct {
	name    string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *tailBuffer
	failure error
	closers []io.Closer

	mu    sync.Mutex
	read  int64
	once     sync.Once
	werr     error
	ended    bool
	inputErr error
}

// StartProcess 启动 cmd 并返回其 stdout 读取器，进程结束后关闭 closers（如 stdin 的数据源）
func StartProcess(name string, cmd *exec.Cmd, failure error, closers ...io.Closer) (*ProcessReader, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout pipe: %w", name, err)
	}
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stderr = stderr
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = waitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s start: %v: %w", name, err, failure)
	}

	return &ProcessReader{
		name:    name,
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		failure: failure,
		closers: closers,
	}, nil
}

// Read 实现 io.Reader
func (r *ProcessReader) Read(p []byte) (int, error) {
	n, err := r.stdout.Read(p)

	r.mu.Lock()
	r.read += int64(n)
	total := r.read
	r.mu.Unlock()

	if err == nil {
		return n, nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		r.wait()
		return n, fmt.Errorf("%s read: %v: %w", r.name, err, r.failure)
	}

	if werr := r.wait(); werr != nil {
		return n, werr
	}
	if ierr := r.InputErr(); ierr != nil {
		return n, fmt.Errorf("%s input: %v: %w", r.name, ierr, r.failure)
	}
	if total == 0 {
		return n, fmt.Errorf("%s produced no output: %w", r.name, r.failure)
	}
	return n, io.EOF
}

// FailInput 记录输入数据提前中断
//
// 进程可能在输入不完整时仍正常退出，此时流以错误而不是 EOF 结束。只保留第一次调用。
func (r *ProcessReader) FailInput(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	if r.inputErr == nil {
		r.inputErr = err
	}
	r.mu.Unlock()
}

// InputErr 获取 FailInput 记录的错误
func (r *ProcessReader) InputErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputErr
}

// BytesRead 已读取的字节数
func (r *ProcessReader) BytesRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read
}

// Close 进程仍在运行时将其杀死并释放资源
func (r *ProcessReader) Close() error {
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	if !ended && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	r.wait()
	return nil
}

func (r *ProcessReader) wait() error {
	r.once.Do(func() {
		err := r.cmd.Wait()
		for _, c := range r.closers {
			_ = c.Close()
		}

		r.mu.Lock()
		r.ended = true
		r.mu.Unlock()

		if err != nil {
			msg := strings.TrimSpace(r.stderr.String())
			r.werr = fmt.Errorf("%s exited: %v: %s: %w", r.name, err, msg, r.failure)
		}
	})
	return r.werr
}

// tailBuffer 保留最后写入的 max 个字节
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

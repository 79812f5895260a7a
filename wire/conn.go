package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/adrg/xdg"
	"golang.org/x/sys/unix"
)

// SocketPath determines the path to the Wayland Unix domain socket
// based on the contents of the $WAYLAND_DISPLAY environment variable.
// It does not attempt to determine if the value corresponds to an
// actual socket.
func SocketPath() string {
	v, ok := os.LookupEnv("WAYLAND_DISPLAY")
	if !ok {
		v = "wayland-0"
	}
	if filepath.IsAbs(v) {
		return v
	}

	return filepath.Join(xdg.RuntimeDir, v)
}

// Listener is a listening Wayland socket together with the lock file
// that marks it as owned by this process.
type Listener struct {
	*net.UnixListener

	name string
	path string
	lock *os.File
}

// Listen opens a Wayland socket in the runtime directory. If name is
// empty, the first unused name of the form wayland-N is picked.
func Listen(name string) (*Listener, error) {
	if name != "" {
		return listen(name)
	}

	for n := 1; n <= 32; n++ {
		lis, err := listen("wayland-" + strconv.Itoa(n))
		if err != nil {
			if errors.Is(err, errSocketInUse) {
				continue
			}
			return nil, err
		}
		return lis, nil
	}

	return nil, errors.New("no free socket name in runtime directory")
}

var errSocketInUse = errors.New("socket in use")

func listen(name string) (*Listener, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(xdg.RuntimeDir, name)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0660)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	err = unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock %q: %w", path, errSocketInUse)
		}
		return nil, fmt.Errorf("lock %q: %w", path, err)
	}

	// Holding the lock means that any existing socket is stale.
	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		lock.Close()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	lis, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	lis.SetUnlinkOnClose(true)

	return &Listener{
		UnixListener: lis,
		name:         filepath.Base(path),
		path:         path,
		lock:         lock,
	}, nil
}

// Name is the value that clients should put in WAYLAND_DISPLAY.
func (lis *Listener) Name() string {
	return lis.name
}

func (lis *Listener) Path() string {
	return lis.path
}

// Accept waits for the next client connection.
func (lis *Listener) Accept() (*Conn, error) {
	c, err := lis.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func (lis *Listener) Close() error {
	err := lis.UnixListener.Close()
	os.Remove(lis.path + ".lock")
	return errors.Join(err, lis.lock.Close())
}

// Dial opens a connection to the Wayland socket based on the current
// environment. It follows the procedure outlined at
// https://wayland-book.com/protocol-design/wire-protocol.html#transports
func Dial() (*Conn, error) {
	if v, ok := os.LookupEnv("WAYLAND_SOCKET"); ok {
		fd, err := strconv.ParseInt(v, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("parse WAYLAND_SOCKET fd: %w", err)
		}
		file := os.NewFile(uintptr(fd), "WAYLAND_SOCKET")
		defer file.Close()
		os.Unsetenv("WAYLAND_SOCKET")

		c, err := net.FileConn(file)
		if err != nil {
			return nil, fmt.Errorf("open WAYLAND_SOCKET connection: %w", err)
		}
		uc, ok := c.(*net.UnixConn)
		if !ok {
			c.Close()
			return nil, errors.New("WAYLAND_SOCKET is not a Unix socket")
		}
		return NewConn(uc), nil
	}

	s, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: SocketPath(), Net: "unix"})
	if err != nil {
		return nil, err
	}
	return NewConn(s), nil
}

// Conn is one end of a Wayland connection. Reading is meant to be done
// from a single goroutine and writing from a single, possibly
// different, goroutine. File descriptors received alongside messages
// are queued until a MessageBuffer claims them, which may happen on yet
// another goroutine.
type Conn struct {
	conn *net.UnixConn

	rbuf []byte
	oob  []byte

	fdm sync.Mutex
	fds []int

	close sync.Once
}

// NewConn creates a new Conn that wraps c. After this is called, use
// the provided Close method to close c instead of calling its own
// Close method.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{
		conn: c,
		rbuf: make([]byte, 0, 2*MaxMessageSize),
		oob:  make([]byte, unix.CmsgSpace(MaxFDs*4)),
	}
}

// Close closes the underlying connection along with any received file
// descriptors that were never claimed.
func (c *Conn) Close() error {
	var err error
	c.close.Do(func() {
		err = c.conn.Close()

		c.fdm.Lock()
		defer c.fdm.Unlock()
		for _, fd := range c.fds {
			unix.Close(fd)
		}
		c.fds = nil
	})
	return err
}

// CloseRead shuts down the reading side of the connection, unblocking
// any pending ReadMessage call, while still allowing writes.
func (c *Conn) CloseRead() error {
	return c.conn.CloseRead()
}

// Credentials returns the process credentials of the peer.
func (c *Conn) Credentials() (*unix.Ucred, error) {
	sc, err := c.conn.SyscallConn()
	if err != nil {
		return nil, err
	}

	var cred *unix.Ucred
	var cerr error
	err = sc.Control(func(fd uintptr) {
		cred, cerr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	return cred, errors.Join(err, cerr)
}

func (c *Conn) fill() error {
	if len(c.rbuf) == cap(c.rbuf) {
		return errors.New("read buffer full")
	}

	n, oobn, _, _, err := c.conn.ReadMsgUnix(c.rbuf[len(c.rbuf):cap(c.rbuf)], c.oob)
	if oobn > 0 {
		ferr := c.readFDs(c.oob[:oobn])
		if ferr != nil {
			return ferr
		}
	}
	if err != nil {
		return err
	}
	if n <= 0 {
		return io.EOF
	}
	c.rbuf = c.rbuf[:len(c.rbuf)+n]
	return nil
}

func (c *Conn) readFDs(data []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(data)
	if err != nil {
		return fmt.Errorf("parse socket control messages: %w", err)
	}

	c.fdm.Lock()
	defer c.fdm.Unlock()

	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			return fmt.Errorf("parse unix control message: %w", err)
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

func (c *Conn) takeFD() (int, bool) {
	c.fdm.Lock()
	defer c.fdm.Unlock()

	if len(c.fds) == 0 {
		return -1, false
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, true
}

// ReadMessage reads the next complete message. It blocks until one is
// available. Framing errors are returned as *MessageError and leave the
// connection unusable.
func (c *Conn) ReadMessage() (*MessageBuffer, error) {
	for len(c.rbuf) < HeaderSize {
		err := c.fill()
		if err != nil {
			return nil, err
		}
	}

	hdr := parseHeader(c.rbuf)
	if hdr.Size < HeaderSize || hdr.Size%4 != 0 || hdr.Size > MaxMessageSize {
		return nil, &MessageError{Sender: hdr.Sender, Op: hdr.Op, Err: fmt.Errorf("invalid message size %v", hdr.Size)}
	}

	for len(c.rbuf) < int(hdr.Size) {
		err := c.fill()
		if err != nil {
			return nil, err
		}
	}

	msg := MessageBuffer{
		sender: hdr.Sender,
		op:     hdr.Op,
		size:   hdr.Size,
		conn:   c,
	}
	msg.data.Reset(append([]byte(nil), c.rbuf[HeaderSize:hdr.Size]...))

	n := copy(c.rbuf, c.rbuf[hdr.Size:])
	c.rbuf = c.rbuf[:n]

	return &msg, nil
}

// Write sends msgs, in order. A message's file descriptors are always
// sent in the same sendmsg call as the first byte of the message, and
// the duplicates held by the builders are closed afterwards whether or
// not the write succeeded.
func (c *Conn) Write(msgs ...*MessageBuilder) error {
	defer func() {
		for _, msg := range msgs {
			msg.close()
		}
	}()

	var buf []byte
	var fds []int
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		err := c.send(buf, fds)
		buf, fds = buf[:0], fds[:0]
		return err
	}

	for _, msg := range msgs {
		data, mfds, err := msg.bytes()
		if err != nil {
			return err
		}
		if len(fds)+len(mfds) > MaxFDs || len(buf)+len(data) > 16*MaxMessageSize {
			err := flush()
			if err != nil {
				return err
			}
		}
		buf = append(buf, data...)
		fds = append(fds, mfds...)
	}

	return flush()
}

func (c *Conn) send(buf []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	n, _, err := c.conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return err
	}

	// The descriptors went out with the first byte, so a short write
	// only needs the remaining bytes.
	for n < len(buf) {
		m, err := c.conn.Write(buf[n:])
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

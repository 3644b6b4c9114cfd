package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"imagecompressor/internal/batch"
	"imagecompressor/internal/models"
)

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	opText  = 0x1
	opClose = 0x8
	opPing  = 0x9
	opPong  = 0xA
)

// maxClientFrame bounds what a client may send; clients only send pings
const maxClientFrame = 4 << 10

var errConnClosed = errors.New("connection closed")

type progressMessage struct {
	Type    string `json:"type"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

type batchCompleteMessage struct {
	Type      string `json:"type"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Saved     int64  `json:"saved"`
}

// hub fans batch events out to connected websocket clients
type hub struct {
	mu      sync.Mutex
	clients map[*wsConn]struct{}
	last    *progressMessage
}

func newHub() *hub {
	return &hub{clients: make(map[*wsConn]struct{})}
}

func (h *hub) progress(p models.BatchProgress) {
	msg := progressMessage{Type: "progress", Current: p.Current, Total: p.Total}
	h.mu.Lock()
	h.last = &msg
	h.mu.Unlock()
	h.broadcast(msg)
}

func (h *hub) batchComplete(r batch.Report) {
	h.broadcast(batchCompleteMessage{
		Type:      "batch-complete",
		Total:     r.Total(),
		Succeeded: r.Succeeded(),
		Failed:    r.Failed(),
		Saved:     r.Saved(),
	})
}

// broadcast drops clients that fail to receive
func (h *hub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	h.mu.Lock()
	clients := make([]*wsConn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeFrame(opText, data); err != nil {
			h.remove(c)
		}
	}
}

func (h *hub) add(c *wsConn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.writeFrame(opClose, nil)
		c.close()
	}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, rw, err := upgradeWebSocket(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := &wsConn{conn: conn}
	h.add(ws)
	defer h.remove(ws)

	ws.writeFrame(opText, []byte(`{"type":"connected"}`))
	h.mu.Lock()
	last := h.last
	h.mu.Unlock()
	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			ws.writeFrame(opText, data)
		}
	}

	for {
		op, payload, err := readFrame(rw.Reader)
		if err != nil {
			return
		}
		switch op {
		case opClose:
			ws.writeFrame(opClose, nil)
			return
		case opPing:
			ws.writeFrame(opPong, payload)
		case opText:
			if strings.Contains(string(payload), `"type":"ping"`) {
				ws.writeFrame(opText, []byte(`{"type":"pong"}`))
			}
		}
	}
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.ReadWriter, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, nil, errors.New("not a websocket request")
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, nil, errors.New("missing Sec-WebSocket-Key")
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}

	rw.WriteString("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(key) + "\r\n\r\n")
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type wsConn struct {
	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

// writeFrame sends one unmasked, final frame
func (ws *wsConn) writeFrame(opcode byte, data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return errConnClosed
	}

	frame := make([]byte, 0, 10+len(data))
	frame = append(frame, 0x80|opcode)
	switch n := len(data); {
	case n < 126:
		frame = append(frame, byte(n))
	case n < 1<<16:
		frame = append(frame, 126)
		frame = binary.BigEndian.AppendUint16(frame, uint16(n))
	default:
		frame = append(frame, 127)
		frame = binary.BigEndian.AppendUint64(frame, uint64(n))
	}
	frame = append(frame, data...)

	ws.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := ws.conn.Write(frame)
	return err
}

func (ws *wsConn) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.closed {
		ws.closed = true
		ws.conn.Close()
	}
}

// readFrame reads one client frame and unmasks it
func readFrame(r *bufio.Reader) (byte, []byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	opcode := header[0] & 0x0F
	masked := header[1]&0x80 != 0
	length := uint64(header[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > maxClientFrame {
		return 0, nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return 0, nil, err
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}
	return opcode, payload, nil
}

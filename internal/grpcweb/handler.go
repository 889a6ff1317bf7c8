// Package grpcweb lets browsers call CareService. It unwraps grpc-web
// frames, forwards the JSON payload over a native gRPC connection and turns
// session marker headers into cookies.
package grpcweb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"healthcare-records-api/internal/middleware"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/session"
)

const contentType = "application/grpc-web+json"

// Bridge translates gRPC-Web (browser HTTP/1.1) to native gRPC.
type Bridge struct {
	conn   grpc.ClientConnInterface
	closer func() error
	secure bool
	log    zerolog.Logger
}

// New dials the gRPC server at addr (e.g. "localhost:50051"). secure marks
// session cookies Secure.
func New(addr string, secure bool, log zerolog.Logger) (*Bridge, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial: %w", err)
	}
	b := NewWithConn(conn, secure, log)
	b.closer = conn.Close
	return b, nil
}

// NewWithConn wraps an existing connection. Close leaves it open.
func NewWithConn(conn grpc.ClientConnInterface, secure bool, log zerolog.Logger) *Bridge {
	return &Bridge{
		conn:   conn,
		secure: secure,
		log:    log.With().Str("component", "grpcweb").Logger(),
	}
}

func (b *Bridge) Close() {
	if b.closer != nil {
		b.closer()
	}
}

// Handler returns an http.Handler that translates gRPC-Web to gRPC.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, X-Doctor-Session, X-Patient-Session, X-Refresh-Token")
		w.Header().Set("Access-Control-Expose-Headers",
			"Grpc-Status, Grpc-Message, grpc-status, grpc-message")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web") {
			http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
			return
		}

		b.log.Debug().Str("method", r.URL.Path).Msg("grpc-web call")
		b.forward(w, r)
	})
}

func (b *Bridge) forward(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, codes.Internal, "read body failed")
		return
	}
	payload, err := unframe(body)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}

	ctx := metadata.NewOutgoingContext(r.Context(), incoming(r))
	if r.URL.Path == rpc.FullMethod("WatchRecords") {
		b.stream(ctx, w, r.URL.Path, payload)
		return
	}

	var hdr metadata.MD
	resp := &rpc.Raw{}
	err = b.conn.Invoke(ctx, r.URL.Path, &rpc.Raw{Data: payload}, resp,
		grpc.ForceCodec(rpc.Codec{}), grpc.Header(&hdr))
	b.setCookies(w, hdr)
	if err != nil {
		st, _ := status.FromError(err)
		b.log.Debug().Str("method", r.URL.Path).Str("code", st.Code().String()).Msg("grpc-web error")
		writeError(w, st.Code(), st.Message())
		return
	}
	writeSuccess(w, resp.Data)
}

// stream relays a server-streaming call, one data frame per message.
func (b *Bridge) stream(ctx context.Context, w http.ResponseWriter, method string, payload []byte) {
	cs, err := b.conn.NewStream(ctx, &rpc.ServiceDesc.Streams[0], method, grpc.ForceCodec(rpc.Codec{}))
	if err == nil {
		err = cs.SendMsg(&rpc.Raw{Data: payload})
	}
	if err == nil {
		err = cs.CloseSend()
	}
	if err != nil {
		st, _ := status.FromError(err)
		writeError(w, st.Code(), st.Message())
		return
	}
	if hdr, err := cs.Header(); err == nil {
		b.setCookies(w, hdr)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for {
		msg := &rpc.Raw{}
		err := cs.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			writeTrailer(w, codes.OK, "")
			return
		}
		if err != nil {
			st, _ := status.FromError(err)
			writeTrailer(w, st.Code(), st.Message())
			return
		}
		writeFrame(w, 0x00, msg.Data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// incoming gathers session markers from cookies and headers. Headers win
// over cookies.
func incoming(r *http.Request) metadata.MD {
	md := metadata.MD{}
	for _, name := range session.AllMarkers {
		key := middleware.MarkerKey(name)
		if v := r.Header.Get(key); v != "" {
			md.Set(key, v)
			continue
		}
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			continue
		}
		v := c.Value
		if name == session.AdminMarker {
			v = "Bearer " + v
		}
		md.Set(key, v)
	}
	return md
}

// setCookies applies marker changes announced by the server. Must run
// before the response header is written.
func (b *Bridge) setCookies(w http.ResponseWriter, hdr metadata.MD) {
	for _, v := range hdr.Get(middleware.HeaderSetMarker) {
		name, value, maxAge, ok := middleware.ParseSetMarker(v)
		if !ok {
			continue
		}
		http.SetCookie(w, b.cookie(name, value, maxAge))
	}
	for _, name := range hdr.Get(middleware.HeaderClearMarker) {
		http.SetCookie(w, b.cookie(name, "", -1))
	}
}

func (b *Bridge) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// unframe returns the payload of the first grpc-web frame:
// 1-byte flag + 4-byte big-endian length + message.
func unframe(body []byte) ([]byte, error) {
	if len(body) < 5 {
		return nil, errors.New("body too short")
	}
	n := binary.BigEndian.Uint32(body[1:5])
	if int(n)+5 > len(body) {
		return nil, errors.New("incomplete frame")
	}
	return body[5 : 5+n], nil
}

func writeFrame(w io.Writer, flag byte, data []byte) {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	w.Write(f)
}

func writeTrailer(w io.Writer, code codes.Code, msg string) {
	trailer := fmt.Sprintf("grpc-status:%d\r\n", code)
	if msg != "" {
		trailer += fmt.Sprintf("grpc-message:%s\r\n", msg)
	}
	writeFrame(w, 0x80, []byte(trailer))
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	writeTrailer(w, code, msg)
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	writeFrame(w, 0x00, data)
	writeTrailer(w, codes.OK, "")
}

package lab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	icrypto "cbcflip/internal/crypto"
	"cbcflip/internal/token"
	"cbcflip/pkg/logx"
)

const (
	CookieName = "session"
	Granted    = "access granted"
	Denied     = "access denied"
)

var userRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Options struct {
	Passphrase string
	// AEAD seals sessions with XChaCha20-Poly1305 instead of unauthenticated AES-CBC.
	AEAD bool
}

type logLine struct {
	Time   time.Time `json:"time"`
	Path   string    `json:"path"`
	Query  string    `json:"query"`
	Status int       `json:"status"`
}

// Server is a deliberately weak target: it trusts any session that decrypts
// and contains admin=1, with no integrity check in CBC mode.
type Server struct {
	sealer icrypto.Sealer
	codec  token.Codec
}

func New(opt Options) (*Server, error) {
	if opt.Passphrase == "" {
		return nil, fmt.Errorf("lab: passphrase required")
	}
	info, keyLen := "cbc", 32
	if opt.AEAD { info = "aead" }
	key, err := icrypto.DeriveKey([]byte(opt.Passphrase), []byte("cbcflip-lab"), []byte(info), keyLen)
	if err != nil { return nil, err }
	var s icrypto.Sealer
	if opt.AEAD {
		s, err = icrypto.NewAEADSealer(key)
	} else {
		s, err = icrypto.NewCBCSealer(key)
	}
	if err != nil { return nil, err }
	return &Server{sealer: s, codec: token.Std}, nil
}

// Issue returns the session token for user, as /login would set it.
func (s *Server) Issue(user string) (string, error) {
	if !userRe.MatchString(user) {
		return "", fmt.Errorf("invalid user name %q", user)
	}
	tok, err := s.sealer.Seal([]byte(Plaintext(user)))
	if err != nil { return "", err }
	return s.codec.Encode(tok), nil
}

// Plaintext is the session content issued to user. The flag leads so it
// always sits in block 0, which only the IV steers.
func Plaintext(user string) string { return "admin=0;user=" + user }

func (s *Server) Handler() http.Handler {
	h := http.NewServeMux()
	h.HandleFunc("/login", s.login)
	h.HandleFunc("/read", s.read)
	return h
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" { user = "guest" }
	tok, err := s.Issue(user)
	if err != nil {
		s.reply(w, r, http.StatusBadRequest, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: tok, Path: "/", HttpOnly: true})
	s.reply(w, r, http.StatusOK, "logged in as "+user+"\nsession="+tok)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		s.reply(w, r, http.StatusUnauthorized, "no session")
		return
	}
	raw, err := s.codec.Decode(c.Value)
	if err != nil {
		s.reply(w, r, http.StatusBadRequest, "bad session encoding")
		return
	}
	pt, err := s.sealer.Open(raw)
	if err != nil {
		s.reply(w, r, http.StatusBadRequest, "bad session")
		return
	}
	if !strings.Contains(string(pt), "admin=1") {
		s.reply(w, r, http.StatusForbidden, Denied)
		return
	}
	name := r.URL.Query().Get("filename")
	if name == "" { name = "flag.txt" }
	s.reply(w, r, http.StatusOK, fmt.Sprintf("%s\ncontents of %s: lab{cbc-bit-flip}", Granted, name))
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, status int, body string) {
	ll := logLine{Time: time.Now().UTC(), Path: r.URL.Path, Query: r.URL.RawQuery, Status: status}
	b, _ := json.Marshal(ll)
	logx.Debugf("%s", b)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body + "\n"))
}

// Serve starts the lab target on addr.
func Serve(addr string, opt Options) error {
	s, err := New(opt)
	if err != nil { return err }
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	logx.Infof("lab target listening on %s (aead=%v)", addr, opt.AEAD)
	return srv.ListenAndServe()
}

package mongovcore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// defaultURIOptions are the options Cosmos DB for MongoDB vCore requires on
// connection strings built from Host, User and Password.
const defaultURIOptions = "tls=true&authMechanism=SCRAM-SHA-256&retrywrites=false&maxIdleTimeMS=120000"

// ConnInfo is a parsed MongoDB connection string.
type ConnInfo struct {
	Scheme   string
	Hosts    []string
	User     string
	Password string
	Database string
	Options  url.Values
}

// BuildConnectionString returns cfg.ConnectionString when set, otherwise a
// mongodb+srv URI for the vCore cluster at cfg.Host.
func BuildConnectionString(cfg Config) (string, error) {
	if cfg.ConnectionString != "" {
		if _, err := ParseConnectionString(cfg.ConnectionString); err != nil {
			return "", err
		}
		return cfg.ConnectionString, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("%w: either connection_string or host is required", vectorstore.ErrInvalidInput)
	}

	var sb strings.Builder
	sb.WriteString("mongodb+srv://")
	if cfg.User != "" {
		sb.WriteString(escapeUserInfo(cfg.User))
		if cfg.Password != "" {
			sb.WriteByte(':')
			sb.WriteString(escapeUserInfo(cfg.Password))
		}
		sb.WriteByte('@')
	}
	sb.WriteString(cfg.Host)
	sb.WriteString("/?")
	sb.WriteString(defaultURIOptions)
	if cfg.AppName != "" {
		sb.WriteString("&appName=")
		sb.WriteString(url.QueryEscape(cfg.AppName))
	}
	return sb.String(), nil
}

// ParseConnectionString splits a mongodb:// or mongodb+srv:// URI into its
// parts. It does not resolve SRV records.
func ParseConnectionString(s string) (*ConnInfo, error) {
	s = strings.TrimSpace(s)
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || (scheme != "mongodb" && scheme != "mongodb+srv") {
		return nil, fmt.Errorf("%w: connection string must start with mongodb:// or mongodb+srv://", vectorstore.ErrInvalidInput)
	}

	info := &ConnInfo{Scheme: scheme, Options: url.Values{}}

	authority, tail := rest, ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority, tail = rest[:i], rest[i:]
	}
	path, query, _ := strings.Cut(strings.TrimPrefix(tail, "/"), "?")

	if at := strings.LastIndex(authority, "@"); at >= 0 {
		user, password, hasPassword := strings.Cut(authority[:at], ":")
		var err error
		if info.User, err = url.PathUnescape(user); err != nil {
			return nil, fmt.Errorf("%w: invalid user in connection string: %v", vectorstore.ErrInvalidInput, err)
		}
		if hasPassword {
			if info.Password, err = url.PathUnescape(password); err != nil {
				return nil, fmt.Errorf("%w: invalid password in connection string", vectorstore.ErrInvalidInput)
			}
		}
		authority = authority[at+1:]
	}

	for _, h := range strings.Split(authority, ",") {
		if h = strings.TrimSpace(h); h != "" {
			info.Hosts = append(info.Hosts, h)
		}
	}
	if len(info.Hosts) == 0 {
		return nil, fmt.Errorf("%w: connection string has no host", vectorstore.ErrInvalidInput)
	}
	if scheme == "mongodb+srv" && (len(info.Hosts) > 1 || strings.Contains(info.Hosts[0], ":")) {
		return nil, fmt.Errorf("%w: mongodb+srv requires a single host without port", vectorstore.ErrInvalidInput)
	}

	if path != "" {
		db, err := url.PathUnescape(path)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid database in connection string: %v", vectorstore.ErrInvalidInput, err)
		}
		info.Database = db
	}
	if query != "" {
		opts, err := url.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid options in connection string: %v", vectorstore.ErrInvalidInput, err)
		}
		info.Options = opts
	}
	return info, nil
}

// Redacted renders the connection string with the password masked.
func (ci *ConnInfo) Redacted() string {
	var sb strings.Builder
	sb.WriteString(ci.Scheme)
	sb.WriteString("://")
	if ci.User != "" {
		sb.WriteString(escapeUserInfo(ci.User))
		if ci.Password != "" {
			sb.WriteString(":xxxxx")
		}
		sb.WriteByte('@')
	}
	sb.WriteString(strings.Join(ci.Hosts, ","))
	sb.WriteByte('/')
	sb.WriteString(url.PathEscape(ci.Database))
	if len(ci.Options) > 0 {
		sb.WriteByte('?')
		sb.WriteString(ci.Options.Encode())
	}
	return sb.String()
}

// escapeUserInfo percent-encodes s for the userinfo part of a URI. The
// driver unescapes userinfo with path rules, so spaces must not become "+".
func escapeUserInfo(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

package transport

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	mdUserID    = "user-id"
	mdAPIToken  = "user-api-token"
	mdAPISecret = "user-api-secret"
	mdUUID      = "uuid"
	mdBaseUUID  = "baseuuid"
	mdSessionID = "sessionid"
)

// Credentials are attached to every call.
type Credentials struct {
	UserID    int64
	APIToken  string
	APISecret string
}

// UploadMeta identifies the file a slot upload belongs to.
type UploadMeta struct {
	UUID      string
	BaseUUID  string
	SessionID string
}

func (c Credentials) pairs() []string {
	return []string{
		mdUserID, strconv.FormatInt(c.UserID, 10),
		mdAPIToken, c.APIToken,
		mdAPISecret, c.APISecret,
	}
}

func (m UploadMeta) pairs() []string {
	return []string{mdUUID, m.UUID, mdBaseUUID, m.BaseUUID, mdSessionID, m.SessionID}
}

func outgoing(ctx context.Context, creds Credentials, extra ...string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, append(creds.pairs(), extra...)...)
}

// CredentialsFromContext reads the caller credentials on the server side.
func CredentialsFromContext(ctx context.Context) (Credentials, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Credentials{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	id, err := strconv.ParseInt(first(md, mdUserID), 10, 64)
	if err != nil || id <= 0 {
		return Credentials{}, status.Error(codes.Unauthenticated, "invalid user-id")
	}
	creds := Credentials{UserID: id, APIToken: first(md, mdAPIToken), APISecret: first(md, mdAPISecret)}
	if creds.APIToken == "" || creds.APISecret == "" {
		return Credentials{}, status.Error(codes.Unauthenticated, "missing api credentials")
	}
	return creds, nil
}

// UploadMetaFromContext reads the per-file upload metadata on the server side.
func UploadMetaFromContext(ctx context.Context) UploadMeta {
	md, _ := metadata.FromIncomingContext(ctx)
	return UploadMeta{
		UUID:      first(md, mdUUID),
		BaseUUID:  first(md, mdBaseUUID),
		SessionID: first(md, mdSessionID),
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

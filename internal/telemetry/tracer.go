package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on HTTP and tool-invocation spans. These follow
// OpenTelemetry semantic conventions where applicable.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"

	AttrToolName     = "tool.name"
	AttrToolCallID   = "tool.call_id"
	AttrToolDuration = "tool.duration_ms"

	AttrPath     = "fs.path"
	AttrFilename = "fs.filename"
	AttrSize     = "fs.size"
	AttrDocType  = "fs.doc_type"

	AttrUsername  = "user.name"
	AttrSessionID = "session.id"

	AttrContentID = "content.id"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for the operations this service instruments.
const (
	SpanHTTPRequest  = "http.request"
	SpanToolInvoke   = "tool.invoke"
	SpanChatComplete = "chat.complete"
	SpanIndexUpsert  = "index.upsert"
	SpanContentRead  = "content.read"
	SpanContentWrite = "content.write"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// HTTPMethod returns an attribute for the HTTP method.
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched chi route pattern.
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status code.
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// ToolName returns an attribute for the invoked tool's name.
func ToolName(name string) attribute.KeyValue {
	return attribute.String(AttrToolName, name)
}

// Username returns an attribute for the acting username.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// SessionID returns an attribute for the session identifier.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// FSPath returns an attribute for a file path.
func FSPath(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// FSFilename returns an attribute for a file basename.
func FSFilename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// FSSize returns an attribute for a file size in bytes.
func FSSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// DocType returns an attribute for a document root type (project, spec,
// management).
func DocType(docType string) attribute.KeyValue {
	return attribute.String(AttrDocType, docType)
}

// ContentID returns an attribute for content ID.
func ContentID(id string) attribute.KeyValue {
	return attribute.String(AttrContentID, id)
}

// Bucket returns an attribute for S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for a cloud storage region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartHTTPSpan starts a span for an incoming HTTP request.
func StartHTTPSpan(ctx context.Context, method, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{HTTPMethod(method), HTTPRoute(route)}, attrs...)
	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(allAttrs...))
}

// StartToolSpan starts a span for a single tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ToolName(toolName)}, attrs...)
	return StartSpan(ctx, SpanToolInvoke, trace.WithAttributes(allAttrs...))
}

// StartContentSpan starts a span for a content store operation.
func StartContentSpan(ctx context.Context, operation string, contentID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ContentID(contentID)}, attrs...)
	return StartSpan(ctx, "content."+operation, trace.WithAttributes(allAttrs...))
}

// FSHandle returns an attribute for an opaque handle, formatted as hex.
// Kept for callers that key off a byte-slice identifier rather than a
// path, e.g. content-addressed stores.
func FSHandle(handle []byte) attribute.KeyValue {
	return attribute.String("fs.handle", fmt.Sprintf("%x", handle))
}

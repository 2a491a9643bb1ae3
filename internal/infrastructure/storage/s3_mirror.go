// Package storage copia los XML firmados a un bucket S3 compatible.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/config"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// objectAPI subconjunto de *s3.Client que usa el espejo.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror guarda cada artefacto firmado bajo prefix/empresa/tipo/fecha/.
type S3Mirror struct {
	client  objectAPI
	presign *s3.PresignClient
	bucket  string
	prefix  string
	ttl     time.Duration
	log     zerolog.Logger
}

// NewS3Mirror crea el cliente a partir de la configuración. Con Endpoint
// informado usa direccionamiento por ruta (MinIO, R2).
func NewS3Mirror(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*S3Mirror, error) {
	if !cfg.Enabled() {
		return nil, errors.New("storage: bucket no configurado")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: configurar AWS: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	m := newMirror(client, cfg, log)
	m.presign = s3.NewPresignClient(client)
	return m, nil
}

func newMirror(client objectAPI, cfg config.StorageConfig, log zerolog.Logger) *S3Mirror {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "s3_mirror").Logger(),
	}
}

// Put sube el XML firmado y devuelve la clave del objeto.
func (m *S3Mirror) Put(ctx context.Context, a *entity.SignedArtifact) (string, error) {
	key := ObjectKey(m.prefix, a)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.SignedXML),
		ContentType: aws.String("application/xml"),
		Metadata: map[string]string{
			"kind":          a.Kind,
			"ncf":           a.ReferenceNCF,
			"security-code": a.SecurityCode,
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: subir %s: %w", key, err)
	}
	m.log.Debug().Str("key", key).Int("bytes", len(a.SignedXML)).Msg("XML firmado copiado")
	return key, nil
}

// PresignURL URL temporal de descarga de una clave guardada por Put.
func (m *S3Mirror) PresignURL(ctx context.Context, key string) (string, error) {
	if m.presign == nil {
		return "", errors.New("storage: presign no disponible")
	}
	req, err := m.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(m.ttl))
	if err != nil {
		return "", fmt.Errorf("storage: firmar URL: %w", err)
	}
	return req.URL, nil
}

// ObjectKey prefix/empresa/tipo/aaaa/mm/dd/<rnc-ncf>-<nanos>.xml. Cada firma
// genera una clave nueva; nunca se sobrescribe un objeto.
func ObjectKey(prefix string, a *entity.SignedArtifact) string {
	at := a.CreatedAt.In(ecf.Location)
	name := a.ReferenceNCF
	if name == "" {
		name = a.Kind
	}
	return path.Join(
		prefix,
		a.CompanyID,
		a.Kind,
		at.Format("2006/01/02"),
		name+"-"+strconv.FormatInt(a.CreatedAt.UnixNano(), 10)+".xml",
	)
}

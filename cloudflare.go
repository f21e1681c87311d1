package ipsync

import (
	"context"
	"strings"

	"github.com/cloudflare/cloudflare-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func newCloudflareClient(token string) (cf *cloudflareClient, err error) {
	cf = new(cloudflareClient)
	cf.api, err = cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, errors.Wrap(err, "creating cloudflare api client")
	}
	cf.logger = discard
	cf.ttl = recordTTL
	return cf, nil
}

// cloudflareClient implements ipsync.RecordClient against the Cloudflare API.
//
// It should be constructed using newCloudflareClient.
type cloudflareClient struct {
	api    *cloudflare.API
	logger logrus.FieldLogger
	ttl    int
}

// FetchCurrentIP implements ipsync.RecordClient.
func (cf *cloudflareClient) FetchCurrentIP(ctx context.Context, zoneID, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	records, err := cf.listARecords(ctx, zoneID, name)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.Wrapf(ErrRecordNotFound, "zone %s has no A record for %s", zoneID, name)
	}
	if len(records) > 1 {
		cf.logger.Warnf("multiple A records match %s; only the first one will be considered", name)
	}
	return records[0].Content, nil
}

// SetIP implements ipsync.RecordClient. Cloudflare has no single upsert call,
// so the record is updated in place when it exists and created otherwise;
// repeating either form with the same address leaves the record unchanged.
func (cf *cloudflareClient) SetIP(ctx context.Context, zoneID, name, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	records, err := cf.listARecords(ctx, zoneID, name)
	if err != nil {
		return err
	}

	rc := cloudflare.ZoneIdentifier(zoneID)
	host := strings.TrimSuffix(name, ".")
	if len(records) == 0 {
		cf.logger.WithField("ip", ip).Debug("creating record")
		_, err := cf.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
			Type:    "A",
			Name:    host,
			Content: ip,
			TTL:     cf.ttl,
			Comment: recordComment,
		})
		if err != nil {
			return classifyCloudflareError(errors.Wrapf(err, "creating A record for %s", host), err)
		}
		return nil
	}

	record := records[0]
	_, err = cf.api.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    "A",
		Name:    host,
		Content: ip,
		TTL:     cf.ttl,
	})
	if err != nil {
		return classifyCloudflareError(errors.Wrapf(err, "updating A record %s", record.ID), err)
	}
	return nil
}

func (cf *cloudflareClient) listARecords(ctx context.Context, zoneID, name string) ([]cloudflare.DNSRecord, error) {
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: "A",
		Name: strings.TrimSuffix(name, "."),
	})
	if err != nil {
		return nil, classifyCloudflareError(errors.Wrapf(err, "listing A records in zone %s", zoneID), err)
	}
	return records, nil
}

// classifyCloudflareError marks rejected tokens and missing zones fatal;
// rate limiting and everything else stays transient. cause is the error as
// returned by the cloudflare API client, which maps 401, 403 and 404
// responses to distinct error types.
func classifyCloudflareError(wrapped error, cause error) error {
	switch cause.(type) {
	case *cloudflare.AuthenticationError, *cloudflare.AuthorizationError, *cloudflare.NotFoundError:
		return MarkFatal(wrapped)
	case *cloudflare.RatelimitError:
		return wrapped
	}
	return wrapped
}

package ipsync

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// recordTTL is the TTL placed on managed records.
const recordTTL = 300

// apiTimeout bounds a single provider API call so a hung request cannot
// block the scheduler past its tick.
const apiTimeout = 15 * time.Second

const recordComment = "managed by ipsync"

func newRoute53Client(region string) (*route53Client, error) {
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if region != "" {
		opts.Config = *aws.NewConfig().WithRegion(region)
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	return &route53Client{svc: route53.New(sess), logger: discard, ttl: recordTTL}, nil
}

// route53Client implements ipsync.RecordClient against Amazon Route 53.
type route53Client struct {
	svc    route53iface.Route53API
	logger logrus.FieldLogger
	ttl    int64

	// lastChangeID remembers the most recent submitted change so ChangePending
	// can report propagation status. Only the single reconciler goroutine
	// touches it.
	lastChangeID string
}

// FetchCurrentIP implements ipsync.RecordClient.
func (c *route53Client) FetchCurrentIP(ctx context.Context, zoneID, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	out, err := c.svc.ListResourceRecordSetsWithContext(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: aws.String(route53.RRTypeA),
		MaxItems:        aws.String("1"),
	})
	if err != nil {
		return "", classifyAWSError(errors.Wrapf(err, "listing record sets in zone %s", zoneID), err)
	}

	for _, rrs := range out.ResourceRecordSets {
		if aws.StringValue(rrs.Type) != route53.RRTypeA || !strings.EqualFold(aws.StringValue(rrs.Name), name) {
			continue
		}
		if len(rrs.ResourceRecords) == 0 {
			return "", errors.Errorf("A record %s has no address value", name)
		}
		if len(rrs.ResourceRecords) > 1 {
			c.logger.Warnf("A record %s has multiple address values; only the first one will be considered", name)
		}
		return aws.StringValue(rrs.ResourceRecords[0].Value), nil
	}
	return "", errors.Wrapf(ErrRecordNotFound, "zone %s has no A record for %s", zoneID, name)
}

// SetIP implements ipsync.RecordClient. The change is submitted as a single
// UPSERT, so repeating it with the same address cannot leave the record in an
// inconsistent state.
func (c *route53Client) SetIP(ctx context.Context, zoneID, name, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	out, err := c.svc.ChangeResourceRecordSetsWithContext(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Comment: aws.String(recordComment),
			Changes: []*route53.Change{
				{
					Action: aws.String(route53.ChangeActionUpsert),
					ResourceRecordSet: &route53.ResourceRecordSet{
						Name: aws.String(name),
						Type: aws.String(route53.RRTypeA),
						TTL:  aws.Int64(c.ttl),
						ResourceRecords: []*route53.ResourceRecord{
							{Value: aws.String(ip)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return classifyAWSError(errors.Wrapf(err, "upserting A record %s", name), err)
	}
	if info := out.ChangeInfo; info != nil {
		c.lastChangeID = aws.StringValue(info.Id)
		c.logger.WithFields(logrus.Fields{
			"change_id": c.lastChangeID,
			"status":    aws.StringValue(info.Status),
		}).Debug("record change submitted")
	}
	return nil
}

// ChangePending reports whether the most recently submitted record change is
// still propagating through the provider's authoritative servers.
func (c *route53Client) ChangePending(ctx context.Context) (bool, error) {
	if c.lastChangeID == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	out, err := c.svc.GetChangeWithContext(ctx, &route53.GetChangeInput{Id: aws.String(c.lastChangeID)})
	if err != nil {
		return false, errors.Wrapf(err, "getting status of change %s", c.lastChangeID)
	}
	if aws.StringValue(out.ChangeInfo.Status) == route53.ChangeStatusInsync {
		c.lastChangeID = ""
		return false, nil
	}
	return true, nil
}

// classifyAWSError marks errors fatal when retrying cannot help: the zone
// does not exist or the credentials are rejected. Throttling and every other
// failure stays transient.
func classifyAWSError(wrapped error, cause error) error {
	var aerr awserr.Error
	if !errors.As(cause, &aerr) {
		return wrapped
	}
	switch aerr.Code() {
	case route53.ErrCodeNoSuchHostedZone,
		"AccessDenied",
		"InvalidClientTokenId",
		"UnrecognizedClientException",
		"SignatureDoesNotMatch",
		"ExpiredToken":
		return MarkFatal(wrapped)
	}
	return wrapped
}

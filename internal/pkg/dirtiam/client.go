package dirtiam

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// IAMClient manages the role assumed by the pipeline's Lambda workers.
type IAMClient struct {
	iamiface.IAMAPI
}

// AssumePolicyDocument lets Lambda assume the worker role.
const AssumePolicyDocument = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {
        "Service": ["lambda.amazonaws.com"]
      },
      "Action": "sts:AssumeRole"
    }
  ]
}`

// AttachPolicyDocument grants workers access to stage data in S3 and to
// CloudWatch logs.
const AttachPolicyDocument = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["s3:*"],
      "Resource": "arn:aws:s3:::*"
    },
    {
      "Effect": "Allow",
      "Action": [
        "logs:CreateLogGroup",
        "logs:CreateLogStream",
        "logs:PutLogEvents"
      ],
      "Resource": "*"
    }
  ]
}`

const dirtPolicyName = "dirt-permissions"

func (iamClient *IAMClient) deployRole(roleName string) (roleARN string, err error) {
	exists, err := iamClient.GetRole(&iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if exists != nil && exists.Role != nil && err == nil {
		log.Debugf("IAM Role '%s' already exists", roleName)
		return aws.StringValue(exists.Role.Arn), nil
	}

	log.Infof("Creating IAM role '%s'", roleName)
	role, err := iamClient.CreateRole(&iam.CreateRoleInput{
		AssumeRolePolicyDocument: aws.String(AssumePolicyDocument),
		RoleName:                 aws.String(roleName),
	})
	if err != nil {
		return "", errors.Wrapf(err, "create role %s", roleName)
	}
	return aws.StringValue(role.Role.Arn), nil
}

func (iamClient *IAMClient) deployPolicy(roleName string) error {
	exists, err := iamClient.GetRolePolicy(&iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(dirtPolicyName),
	})
	if exists != nil && err == nil {
		log.Debugf("Policy '%s' already exists", dirtPolicyName)
		return nil
	}

	log.Infof("Attaching policy '%s' to role '%s'", dirtPolicyName, roleName)
	_, err = iamClient.PutRolePolicy(&iam.PutRolePolicyInput{
		PolicyName:     aws.String(dirtPolicyName),
		PolicyDocument: aws.String(AttachPolicyDocument),
		RoleName:       aws.String(roleName),
	})
	return errors.Wrapf(err, "put role policy on %s", roleName)
}

// DeployPermissions creates the worker role and its policy if they do not
// exist yet, and returns the role's ARN.
func (iamClient *IAMClient) DeployPermissions(roleName string) (roleARN string, err error) {
	roleARN, err = iamClient.deployRole(roleName)
	if err != nil {
		return roleARN, err
	}

	return roleARN, iamClient.deployPolicy(roleName)
}

// DeletePermissions removes the worker role and its policy.
func (iamClient *IAMClient) DeletePermissions(roleName string) error {
	_, err := iamClient.DeleteRolePolicy(&iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(dirtPolicyName),
	})
	if err != nil {
		return errors.Wrapf(err, "delete role policy on %s", roleName)
	}

	_, err = iamClient.DeleteRole(&iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	return errors.Wrapf(err, "delete role %s", roleName)
}

// NewIAMClient initializes a new IAMClient
func NewIAMClient() *IAMClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &IAMClient{
		iam.New(sess),
	}
}

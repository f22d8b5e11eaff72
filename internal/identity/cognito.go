package identity

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/pkg/errors"
)

// CognitoAPI is the subset of the Cognito client used for logins.
type CognitoAPI interface {
	AdminInitiateAuth(ctx context.Context, in *cip.AdminInitiateAuthInput, optFns ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error)
	AdminSetUserPassword(ctx context.Context, in *cip.AdminSetUserPasswordInput, optFns ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error)
}

// Cognito serves logins through an AWS Cognito user pool and returns its ID token.
type Cognito struct {
	Client     CognitoAPI
	UserPoolID string
	ClientID   string
	Log        *slog.Logger
}

// NewCognito builds a provider from the default AWS credential chain.
func NewCognito(ctx context.Context, region, userPoolID, clientID string, log *slog.Logger) (*Cognito, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &Cognito{
		Client:     cip.NewFromConfig(cfg),
		UserPoolID: userPoolID,
		ClientID:   clientID,
		Log:        log,
	}, nil
}

func (c *Cognito) initiate(ctx context.Context, username, password string) (*cip.AdminInitiateAuthOutput, error) {
	return c.Client.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
		AuthFlow:   types.AuthFlowTypeAdminNoSrpAuth,
		ClientId:   aws.String(c.ClientID),
		UserPoolId: aws.String(c.UserPoolID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
}

// Login authenticates and, when Cognito demands a new password, sets it permanently and
// authenticates again with it.
func (c *Cognito) Login(ctx context.Context, req LoginRequest) (string, error) {
	out, err := c.initiate(ctx, req.Username, req.Password)
	if err != nil {
		return "", errors.Wrap(err, "Error logging in user")
	}
	if out.ChallengeName == types.ChallengeNameTypeNewPasswordRequired {
		if req.NewPassword == "" {
			return "", ErrNewPasswordRequired
		}
		if _, err := c.Client.AdminSetUserPassword(ctx, &cip.AdminSetUserPasswordInput{
			UserPoolId: aws.String(c.UserPoolID),
			Username:   aws.String(req.Username),
			Password:   aws.String(req.NewPassword),
			Permanent:  true,
		}); err != nil {
			return "", errors.Wrap(err, "Error logging in user")
		}
		if c.Log != nil {
			c.Log.Info("cognito password set after challenge", "username", req.Username)
		}
		out, err = c.initiate(ctx, req.Username, req.NewPassword)
		if err != nil {
			return "", errors.Wrap(err, "Error logging in user")
		}
	}
	if out.AuthenticationResult == nil || out.AuthenticationResult.IdToken == nil {
		return "", errors.New("Authentication result not found")
	}
	return *out.AuthenticationResult.IdToken, nil
}

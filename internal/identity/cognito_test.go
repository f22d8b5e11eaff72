package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/require"
)

type fakeCognito struct {
	passwords map[string]string
	pending   map[string]bool
	setCalls  []cip.AdminSetUserPasswordInput
}

func (f *fakeCognito) AdminInitiateAuth(_ context.Context, in *cip.AdminInitiateAuthInput, _ ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error) {
	if in.AuthFlow != types.AuthFlowTypeAdminNoSrpAuth {
		return nil, errors.New("unexpected auth flow")
	}
	user := in.AuthParameters["USERNAME"]
	if f.passwords[user] != in.AuthParameters["PASSWORD"] {
		return nil, errors.New("NotAuthorizedException: Incorrect username or password.")
	}
	if f.pending[user] {
		return &cip.AdminInitiateAuthOutput{ChallengeName: types.ChallengeNameTypeNewPasswordRequired}, nil
	}
	return &cip.AdminInitiateAuthOutput{AuthenticationResult: &types.AuthenticationResultType{IdToken: aws.String("id-token-" + user)}}, nil
}

func (f *fakeCognito) AdminSetUserPassword(_ context.Context, in *cip.AdminSetUserPasswordInput, _ ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error) {
	f.setCalls = append(f.setCalls, *in)
	user := aws.ToString(in.Username)
	f.passwords[user] = aws.ToString(in.Password)
	if in.Permanent {
		delete(f.pending, user)
	}
	return &cip.AdminSetUserPasswordOutput{}, nil
}

func TestCognitoLogin(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCognito{passwords: map[string]string{"alice": "pw"}, pending: map[string]bool{}}
	c := &Cognito{Client: fake, UserPoolID: "pool", ClientID: "client"}

	tok, err := c.Login(ctx, LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "id-token-alice", tok)

	_, err = c.Login(ctx, LoginRequest{Username: "alice", Password: "bad"})
	require.ErrorContains(t, err, "Error logging in user")
}

func TestCognitoNewPasswordChallenge(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCognito{passwords: map[string]string{"bob": "temp"}, pending: map[string]bool{"bob": true}}
	c := &Cognito{Client: fake, UserPoolID: "pool", ClientID: "client"}

	_, err := c.Login(ctx, LoginRequest{Username: "bob", Password: "temp"})
	require.ErrorIs(t, err, ErrNewPasswordRequired)
	require.Empty(t, fake.setCalls)

	tok, err := c.Login(ctx, LoginRequest{Username: "bob", Password: "temp", NewPassword: "final"})
	require.NoError(t, err)
	require.Equal(t, "id-token-bob", tok)
	require.Len(t, fake.setCalls, 1)
	require.Equal(t, "pool", aws.ToString(fake.setCalls[0].UserPoolId))
	require.True(t, fake.setCalls[0].Permanent)
}

package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deleteVerification = regexp.QuoteMeta("DELETE FROM `email_verifications`")
	insertVerification = regexp.QuoteMeta("INSERT INTO `email_verifications`")
	selectVerification = regexp.QuoteMeta("SELECT * FROM `email_verifications`")
	updateVerification = regexp.QuoteMeta("UPDATE `email_verifications` SET")
	updateUser         = regexp.QuoteMeta("UPDATE `users` SET")
)

func TestStartVerification_ReplacesOpenTokens(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(deleteVerification).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertVerification).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	token, err := svc.StartVerification(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmVerification(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()
	token := "tok_verify"

	mock.ExpectBegin()
	mock.ExpectQuery(selectVerification).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
			AddRow("v1", "u1", hashToken(token), now.Add(time.Hour), now))
	mock.ExpectExec(updateVerification).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateUser).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectUser).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "email_verified_at", "created_at", "updated_at"}).
			AddRow("u1", "a@b.co", "x", RoleUser, now, now, now))
	mock.ExpectCommit()

	u, err := svc.ConfirmVerification(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, u.EmailVerified())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmVerification_UnknownUsedOrExpired(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectVerification).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.ConfirmVerification(context.Background(), "already-used")
	assert.ErrorIs(t, err, ErrInvalidVerification)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.ConfirmVerification(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidVerification)
}

func TestUser_EmailVerified(t *testing.T) {
	assert.False(t, User{}.EmailVerified())
	now := time.Now()
	assert.True(t, User{EmailVerifiedAt: &now}.EmailVerified())
}

package utils

import "golang.org/x/crypto/bcrypt"

// HashVerificationCode хеширует код подтверждения перед сохранением,
// чтобы в Redis не лежали коды в открытом виде
func HashVerificationCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckVerificationCode сверяет код с сохраненным хешем
func CheckVerificationCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

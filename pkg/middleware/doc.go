// Package middleware はfeedhubの各HTTPサーフェスで共有するGinミドルウェアを提供する。
// JWT認証、CORS、パニック回復を含む。
package middleware

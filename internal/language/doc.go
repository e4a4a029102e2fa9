// Package language maps ISO 639 language codes to the English names used as
// taxonomy terms on published posts.
package language

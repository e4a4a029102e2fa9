// Package wordpress publishes records to a WordPress site through the REST
// API (wp-json/wp/v2) using application-password basic auth.
//
// Publishing a record takes three steps: the poster is uploaded to the media
// library, every taxonomy term the post needs is looked up or created, and
// the post itself is created with its meta fields, terms, tags and featured
// image. Term ids are cached per site for the lifetime of the Sink.
package wordpress

// Package listing turns operator input into media descriptors: text files of
// "Title Year" or "Show Season S Episode E" lines, id files, and the HTML
// directory index of the file storage the published posts link to.
package listing

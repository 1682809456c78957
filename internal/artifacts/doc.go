/*
Package artifacts owns the on-disk layout of uploads and generated clips.

Uploads are stored flat as "<unixmillis>-<name>" in the upload directory.
Each processed upload gets its own "project <N>" directory under the clips
directory; N is allocated under a mutex and the directory is created
exclusively, so concurrent uploads never share a project.

The Accountant walks both trees to measure usage and rejects new work that
would exceed the storage quota with ErrQuotaExceeded.
*/
package artifacts

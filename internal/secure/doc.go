// Package secure keeps vault session tokens and credentials out of plain
// process memory while a fetch runs.
//
// It wraps memguard: values are sealed into an encrypted enclave and only
// decrypted into mlocked, guard-paged buffers for the duration of a use.
//
//	buf, err := secure.NewSecureString(token)
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	value, err := buf.String()
//
// It does NOT protect against attackers with root access to the running
// process, nor against the copy handed to a child process as an argument.
package secure
